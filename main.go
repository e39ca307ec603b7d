package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/asdine/storm"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"cannode/canbus"
	"cannode/journal"
	"cannode/monitor"
	"cannode/node"
	"cannode/reader"
)

var (
	ENV       *EnvConfig
	jwtSecret []byte
)

func init() {
	// Load main config
	ENV = new(EnvConfig)
	env.Parse(ENV)

	if ENV.JWT_SECRET != "" {
		jwtSecret = []byte(ENV.JWT_SECRET)
	} else {
		// tokens will not survive a restart, which is fine for a device
		jwtSecret = make([]byte, 32)
		rand.Read(jwtSecret)
	}

	// setup database, make sure to init all of the structs
	dbFile := ENV.DBPATH
	dir := filepath.Dir(dbFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		os.Mkdir(dir, 0755)
	}

	db, err := openDb(dbFile)
	if err != nil {
		panic(err)
	}
	ENV.DB = db
}

func usage() {
	fmt.Println("Must pass CAN channel argument.")
	fmt.Println("For example: cannode 1")
}

func main() {
	// process flags
	configPath := flag.String("config", "", "path to the yaml node config")
	port := flag.String("port", "", "ip:port for the monitor API, overrides the config file")
	sim := flag.Bool("sim", false, "attach to the process local virtual bus instead of hardware")
	withShell := flag.Bool("shell", false, "start the development shell")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}
	channel64, err := strconv.ParseUint(flag.Arg(0), 10, 32)
	if err != nil {
		fmt.Println("Invalid argument. The channel must be a valid integer CAN channel number.")
		usage()
		os.Exit(1)
	}
	channel := uint32(channel64)

	config := DefaultNodeConfig()
	if *configPath != "" {
		config, err = LoadNodeConfig(*configPath)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	rate, err := config.ParseDatarate()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	defer ENV.DB.Close() // close database when finished

	// Setup the reader node
	rdr := reader.New(channel, config.OpenFlags(), rate)
	if *sim {
		rdr.UseChannel(canbus.Virtual(channel).Open())
	}
	if config.RequireVersion != "" {
		rdr.SetVersionGate(&reader.VersionGate{
			Constraint: config.RequireVersion,
			RequestID:  config.VersionID,
		})
	}

	var j *journal.Journal
	if config.Journal {
		j, err = journal.New(ENV.DB)
		if err != nil {
			panic(fmt.Sprintf("unable to initialize journal: %v", err))
		}
		sub, _ := rdr.Subscribe(256)
		go j.Follow(channel, sub)
	}

	mon := &monitor.Monitor{Reader: rdr, Journal: j}

	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	//---
	// Build the API routes
	//---
	r.Route("/api", func(r chi.Router) {
		// login
		r.Post("/login", Login)

		r.Group(func(r chi.Router) {
			// Seek, verify and validate JWT tokens
			if !ENV.DEBUG {
				r.Use(ValidateJWT)
			}

			r.Get("/refresh_token", JWTRefresh)
			r.Mount("/can", mon.Routes())
		})
	})

	// Add websocket routes
	r.Route("/ws", func(r chi.Router) {
		if !ENV.DEBUG {
			r.Use(ValidateJWT)
		} else {
			fmt.Println("Running in debug mode. Authentication disabled.")
		}

		r.Get("/frames", mon.StreamFrames)
	})

	listen := config.Listen
	if *port != "" {
		listen = *port
	}
	go func() {
		fmt.Println("Monitor listening on", listen)
		if err := http.ListenAndServe(listen, r); err != nil {
			log.Print(err)
		}
	}()

	//---
	// Create a local shell
	//---
	if *withShell {
		go startShell(rdr, j)
	}

	// Connect begins the node's execution loop; SIGINT shuts down gracefully
	rt := node.NewRuntime("cannode-reader", rdr)
	if err := rt.Connect(); err != nil {
		log.Printf("node ended on fault: %v", err)
	}
}

func openDb(dbFile string) (db *storm.DB, err error) {
	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&User{}); err != nil {
		return nil, err
	}

	return
}
