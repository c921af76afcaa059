package main

import "github.com/sith-robotics/roverlog/cmd/roverlog"

func main() {
	roverlog.Main()
}
