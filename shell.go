package main

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"cannode/canbus"
	"cannode/journal"
	"cannode/reader"
)

// startShell runs the interactive development shell alongside the node.
func startShell(rdr *reader.Node, j *journal.Journal) {
	shell := ishell.New()
	shell.Println("cannode development shell")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send <id> <hex payload>",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Println("usage: send <id> <hex payload>")
				return
			}

			id, err := strconv.ParseUint(c.Args[0], 0, 32)
			if err != nil {
				c.Err(err)
				return
			}

			var data []byte
			if len(c.Args) > 1 {
				data, err = hex.DecodeString(strings.Join(c.Args[1:], ""))
				if err != nil {
					c.Err(err)
					return
				}
			}

			ch := rdr.Channel()
			if ch == nil {
				c.Println("node is not on bus yet")
				return
			}

			msg := &canbus.Frame{ID: uint32(id), Data: data}
			if msg.ID > 0x7FF {
				msg.Extended = true
			}
			if err := ch.Send(msg); err != nil {
				c.Err(err)
				return
			}
			c.Printf("sent %s\n", msg)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "stats",
		Help: "show receive counters",
		Func: func(c *ishell.Context) {
			s := rdr.Stats()
			c.Printf("frames: %d  bytes: %d  ids: %d\n", s.Frames, s.Bytes, len(s.PerID))
			if s.Frames > 0 {
				c.Printf("last: 0x%X [%d] at %s\n", s.LastID, s.LastDLC, s.LastSeen.Format("15:04:05.000"))
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "recent",
		Help: "recent [n] - show the journal tail",
		Func: func(c *ishell.Context) {
			if j == nil {
				c.Println("journal is disabled")
				return
			}

			n := 10
			if len(c.Args) >= 1 {
				n, _ = strconv.Atoi(c.Args[0])
			}

			entries, err := j.Recent(n)
			if err != nil {
				c.Err(err)
				return
			}
			for _, e := range entries {
				c.Printf("%s  0x%04X \t[%d] \t% x\n", e.At.Format("15:04:05.000"), e.CANID, e.DLC, e.Data)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "createsuperuser",
		Help: "createsuperuser <email> <password>",
		Func: func(c *ishell.Context) {
			// disable the '>>>' for cleaner same line input.
			c.ShowPrompt(false)
			defer c.ShowPrompt(true)

			var email string
			if len(c.Args) >= 1 {
				email = c.Args[0]
			} else {
				c.Print("Email: ")
				email = c.ReadLine()
			}

			var password string
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			user := &User{
				Email: email,
				Name:  email,
				Admin: true,
			}
			user.SetPassword([]byte(password))
			if err := ENV.DB.Save(user); err != nil {
				c.Err(err)
				return
			}

			c.Println("Superuser created")
		},
	})

	shell.Start()
}
