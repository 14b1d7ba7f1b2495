package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"hashdb/pkg/concurrency"
	"hashdb/pkg/config"
	"hashdb/pkg/database"
	"hashdb/pkg/pager"
	"hashdb/pkg/repl"

	"github.com/google/uuid"
)

// Default port 8335 (BEES).
const DEFAULT_PORT int = 8335

// Listens for SIGINT or SIGTERM and closes the database.
func setupCloseHandler(database *database.Database) {
	c := make(chan os.Signal)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("closehandler invoked")
		database.Close()
		os.Exit(0)
	}()
}

// Start listening for connections at port `port`, running the repl over
// each connection. Each client gets its own transaction for the lifetime
// of its connection.
func startServer(r *repl.REPL, prompt string, port int) {
	handleConn := func(c net.Conn) {
		txn := concurrency.NewTransaction(uuid.New())
		defer c.Close()
		r.Run(txn.GetClientID(), prompt, c, c)
	}
	// Start listening for new connections.
	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		log.Fatal(err)
	}
	dbName := config.DBName
	fmt.Printf("%v server started listening on localhost:%v\n", dbName,
		listener.Addr().(*net.TCPAddr).Port)
	// Handle each connection.
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Print(err)
			continue
		}
		go handleConn(conn)
	}
}

// Start the database.
func main() {
	// Set up flags.
	var promptFlag = flag.Bool("c", true, "use prompt?")
	var replFlag = flag.String("repl", "db", "choose repl: [db,pager]")
	var dbFlag = flag.String("db", "data/", "DB folder")
	var portFlag = flag.Int("p", DEFAULT_PORT, "port number")
	var serverFlag = flag.Bool("server", false, "serve the repl over tcp instead of stdin")
	flag.Parse()

	// Open the db.
	db, err := database.Open(*dbFlag)
	if err != nil {
		panic(err)
	}

	// Setup close conditions.
	defer db.Close()
	setupCloseHandler(db)

	// Set up REPL resources.
	prompt := config.GetPrompt(*promptFlag)
	repls := make([]*repl.REPL, 0)

	// Get the right REPLs.
	switch *replFlag {
	case "pager":
		pRepl, err := pager.PagerRepl()
		if err != nil {
			fmt.Println(err)
			return
		}
		repls = append(repls, pRepl)

	case "db":
		repls = append(repls, database.DatabaseRepl(db))

	default:
		fmt.Println("must specify -repl [db,pager]")
		return
	}

	// Combine the REPLs.
	r, err := repl.CombineRepls(repls)
	if err != nil {
		fmt.Println(err)
		return
	}

	// Serve over tcp if requested, else run the REPL here.
	if *serverFlag {
		startServer(r, prompt, *portFlag)
	} else {
		r.Run(uuid.New(), prompt, nil, nil)
	}
}
