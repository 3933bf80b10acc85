package main

import (
	"fmt"

	"github.com/gwillem/cyberdog/pkg/hw"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := hw.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}
