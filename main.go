package main

import "rawjobs-crawler/cmd"

func main() {
	cmd.Execute()
}
