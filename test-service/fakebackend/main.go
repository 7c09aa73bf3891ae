// fakebackend stands in for the real start script in integration tests.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"
)

func main() {
	port := flag.Int("port", 0, "port to listen on (0 = do not listen)")
	delay := flag.Duration("delay", 0, "wait before listening")
	exitCode := flag.Int("exit", -1, "exit immediately with this code (-1 = keep running)")
	spawn := flag.Bool("spawn", false, "spawn a long-lived child process")
	sleep := flag.Duration("sleep", 60*time.Second, "how long to stay alive")
	childSleep := flag.Duration("childsleep", 60*time.Second, "how long the spawned child stays alive")
	pidFile := flag.String("pidfile", "", "write the spawned child pid here")
	flag.Parse()

	if *exitCode >= 0 {
		fmt.Println("fakebackend-exit", *exitCode)
		os.Exit(*exitCode)
	}

	if *spawn {
		self, _ := os.Executable()
		cmd := exec.Command(self, "-sleep", childSleep.String())
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			fmt.Fprintln(os.Stderr, "failed to spawn child:", err)
			os.Exit(3)
		}
		fmt.Println("spawned-child", cmd.Process.Pid)
		if *pidFile != "" {
			_ = os.WriteFile(*pidFile, []byte(strconv.Itoa(cmd.Process.Pid)), 0644)
		}
	}

	if *port > 0 {
		time.Sleep(*delay)
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(*port)))
		if err != nil {
			fmt.Fprintln(os.Stderr, "listen:", err)
			os.Exit(2)
		}
		defer l.Close()
		fmt.Println("listening", *port)
		go func() {
			for {
				conn, err := l.Accept()
				if err != nil {
					return
				}
				conn.Close()
			}
		}()
	}

	time.Sleep(*sleep)
	fmt.Println("fakebackend-done")
}
