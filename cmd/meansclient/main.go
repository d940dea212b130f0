// Command meansclient plays a short session against a Means to an End server and prints the responses.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	mte "github.com/harveysanders/meanstoend"
	"github.com/harveysanders/meanstoend/proto"
)

// session is the example session from the protocol description. The query
// should return 101.
var session = []proto.Message{
	proto.Insert{Timestamp: 12_345, Price: 101},
	proto.Insert{Timestamp: 12_346, Price: 102},
	proto.Insert{Timestamp: 12_347, Price: 100},
	proto.Insert{Timestamp: 40_960, Price: 5},
	proto.Query{MinTime: 12_288, MaxTime: 16_384},
}

func main() {
	addr := flag.String("addr", defaultAddr(), "server address")
	timeout := flag.Duration("timeout", 5*time.Second, "dial timeout")
	flag.Parse()

	if err := run(context.Background(), os.Stdout, *addr, *timeout); err != nil {
		log.Fatal(err)
	}
}

func defaultAddr() string {
	host, port := os.Getenv("HOST"), os.Getenv("PORT")
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "9002"
	}
	return net.JoinHostPort(host, port)
}

func run(ctx context.Context, out io.Writer, addr string, timeout time.Duration) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mte.Dial(dialCtx, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer client.Close()

	fmt.Fprintf(out, "connected to %s\n", addr)
	for _, msg := range session {
		fmt.Fprintf(out, "--> %s\n", msg)

		q, ok := msg.(proto.Query)
		if !ok {
			if err := client.Send(msg); err != nil {
				return err
			}
			continue
		}

		mean, err := client.Query(q.MinTime, q.MaxTime)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "<-- %d\n", mean)
	}
	return nil
}
