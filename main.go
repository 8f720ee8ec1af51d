package main

import "github.com/audiolibrelab/livecapture/cmd"

func main() {
	cmd.Execute()
}
