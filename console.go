package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"miniarena-client/client"
)

// controller 控制台驱动的会话能力
type controller interface {
	KeyDown(k client.Key) bool
	KeyUp(k client.Key) bool
	Blur() bool
	Click(x, y float64) bool
	Zoom(steps int) bool
	SetZoom(z float64) bool
	Status(ctx context.Context) (client.Status, error)
}

// console 逐行读取命令：
//
//	press <dir> | release <dir> | click <x> <y> | zoom in|out|<z> | blur | status | snapshot <file> | quit
type console struct {
	ctl      controller
	out      io.Writer
	snapshot func(path string) error
}

// run 直到输入结束、quit 或 ctx 取消；quit 时返回 io.EOF
func (c *console) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.exec(ctx, line); err != nil {
				if err == io.EOF {
					return err
				}
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "press", "release":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <up|down|left|right>", cmd)
		}
		k, err := client.ParseKey(args[0])
		if err != nil {
			return err
		}
		if cmd == "press" {
			c.ctl.KeyDown(k)
		} else {
			c.ctl.KeyUp(k)
		}
	case "click":
		if len(args) != 2 {
			return fmt.Errorf("usage: click <x> <y>")
		}
		x, err := parseFinite(args[0])
		if err != nil {
			return fmt.Errorf("click x: %w", err)
		}
		y, err := parseFinite(args[1])
		if err != nil {
			return fmt.Errorf("click y: %w", err)
		}
		c.ctl.Click(x, y)
	case "zoom":
		if len(args) != 1 {
			return fmt.Errorf("usage: zoom in|out|<factor>")
		}
		switch args[0] {
		case "in", "+":
			c.ctl.Zoom(1)
		case "out", "-":
			c.ctl.Zoom(-1)
		default:
			z, err := parseFinite(args[0])
			if err != nil {
				return fmt.Errorf("zoom: %w", err)
			}
			c.ctl.SetZoom(z)
		}
	case "blur":
		c.ctl.Blur()
	case "status":
		st, err := c.ctl.Status(ctx)
		if err != nil {
			return err
		}
		return c.printStatus(st)
	case "snapshot":
		if len(args) != 1 || c.snapshot == nil {
			return fmt.Errorf("usage: snapshot <file.png>")
		}
		if err := c.snapshot(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "wrote %s\n", args[0])
	case "quit", "exit":
		return io.EOF
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (c *console) printStatus(st client.Status) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\nreceived %s\n", b, humanize.Bytes(st.BytesReceived))
	return nil
}

// parseFinite 拒绝 NaN 与 ±Inf
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}
