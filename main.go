package main

import (
	"fmt"
	"os"

	_ "service-nanny/cmd"
	"service-nanny/cmd/root"
)

func main() {
	// 检查是否是服务器模式
	root.ServerMode = len(os.Args) > 1 && os.Args[1] == "server"

	if err := root.RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
