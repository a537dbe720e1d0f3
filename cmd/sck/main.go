// Command sck is a short alias that execs schedcheck from PATH.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func main() {
	bin, err := exec.LookPath("schedcheck")
	if err != nil {
		fmt.Fprintln(os.Stderr, "sck: schedcheck not found on PATH")
		os.Exit(1)
	}
	if err := syscall.Exec(bin, append([]string{"schedcheck"}, os.Args[1:]...), os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "sck: %v\n", err)
		os.Exit(1)
	}
}
