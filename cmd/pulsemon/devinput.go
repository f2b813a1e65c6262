package main

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/banshee-data/pulse.monitor/internal/serialmux"
)

// hubLines translates one line of keyboard input into hub protocol lines.
// Each knob command produces three encoder edges so it clears the rotary
// filter. Anything else is passed through so raw hub lines can be typed.
func hubLines(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	var b strings.Builder
	for _, r := range cmd {
		switch r {
		case 'b', 'B':
			b.WriteString("B\n")
		case '+':
			b.WriteString("R 0\nR 0\nR 0\n")
		case '-':
			b.WriteString("R 1\nR 1\nR 1\n")
		default:
			return cmd + "\n"
		}
	}
	return b.String()
}

// feedDevInput copies keyboard commands from r into the simulated hub port
// until r ends or ctx is done.
func feedDevInput(ctx context.Context, r io.Reader, p *serialmux.TestableSerialPort) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if lines := hubLines(sc.Text()); lines != "" {
			p.AddReadData(lines)
		}
	}
}
