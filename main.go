package main

import "piccsync-backend/cmd"

func main() {
	cmd.Run()
}
