// Command kollektor-loadgen is the synthetic UDP producer used to
// load-test a running aggregator, reproducing inkollektor.cpp's Producer:
// a rotating pool of keys, a fixed vocabulary of values, one goroutine per
// concurrency unit sending "key;value" datagrams as fast as it can.
package main

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"sync"

	"github.com/urfave/cli"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

// vocabulary is the fixed set of values a producer draws from, carried
// over from the original tool verbatim in spirit (a fixed word list),
// substituted here with plain English words rather than translating the
// source's Italian list character for character.
var vocabulary = []string{
	"good-night", "one", "four", "five", "seven", "ten", "goodbye", "farewell",
	"very", "excuse-me", "wanted", "some", "speak", "slowly", "water", "orange",
	"our", "wishes", "everything", "how", "this", "that", "shadow", "umbrella",
	"where", "british", "american", "australian", "french", "nineteen", "twenty",
	"maybe", "italy", "america", "australia", "france", "bird", "please", "canada",
	"lift", "bathroom", "theater", "building", "sunset", "salty", "bitter", "snake",
	"put", "know", "horse", "warm", "treat", "field", "surname", "painting",
	"frame", "fall", "fresh", "certainly", "ugly", "big", "small", "deliver",
	"year", "seventeen", "eighteen", "work", "elder", "clear", "ask", "ring",
	"pharmacy", "housewife", "flame", "airport", "fish-market", "butcher",
	"garden", "wide", "narrow", "opposite", "answer", "blue", "canadian",
	"spain", "spanish", "portugal", "orange-colored", "twenty-one", "twenty-two",
	"twenty-three", "hour", "appointment", "west", "north", "southwest",
	"twenty-six", "twenty-seven", "twenty-eight", "twenty-nine", "live",
	"home", "all", "work", "meeting", "how-much", "how-many", "pay", "german",
	"short", "long", "bad", "some", "eleven", "twelve", "thirteen", "fourteen",
	"fifteen", "platinum", "iron", "rock", "thunder", "hail", "windy", "glue",
	"meadow", "park", "dentist", "map",
}

const keyPoolSize = 64
const keyLength = 32
const keymap = "1234567890abcdef"

func genkey(rng *rand.Rand) string {
	buf := make([]byte, keyLength)
	for i := range buf {
		buf[i] = keymap[rng.Intn(len(keymap))]
	}
	return string(buf)
}

// produce sends datagrams to one target until messageCount is exhausted
// (a negative messageCount means unlimited).
func produce(id int, address string, port int, messageCount int64, wg *sync.WaitGroup) {
	defer wg.Done()

	rng := rand.New(rand.NewSource(int64(id) + 1))

	keys := make([]string, keyPoolSize)
	for i := range keys {
		keys[i] = genkey(rng)
	}

	conn, err := net.Dial("udp", net.JoinHostPort(address, fmt.Sprint(port)))
	if err != nil {
		log.Printf("producer %d: dial: %v", id, err)
		return
	}
	defer conn.Close()

	var counter uint64
	var keyIndex int
	for messageCount != 0 {
		keyIndex = (keyIndex + 1) % len(keys)
		key := keys[keyIndex]
		value := vocabulary[rng.Intn(len(vocabulary))]

		datagram := fmt.Sprintf("%s;%s", key, value)
		if _, err := conn.Write([]byte(datagram)); err != nil {
			log.Printf("producer %d: write: %v", id, err)
			return
		}

		counter++
		if messageCount > 0 {
			messageCount--
		}

		if counter%1024 == 0 {
			keys[rng.Intn(len(keys))] = genkey(rng)
		}
	}
}

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "kollektor-loadgen"
	app.Usage = "produces kollektor-compatible message streams for load testing"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "address, a",
			Value: "127.0.0.1",
			Usage: "target host IP address",
		},
		cli.IntFlag{
			Name:  "port, p",
			Value: 2323,
			Usage: "target UDP port number",
		},
		cli.IntFlag{
			Name:  "concurrency, c",
			Value: 1,
			Usage: "number of concurrent producer goroutines",
		},
		cli.Int64Flag{
			Name:  "message-count, n",
			Value: -1,
			Usage: "number of messages to send per producer; -1 means unlimited",
		},
	}
	app.Action = func(c *cli.Context) error {
		address := c.String("address")
		port := c.Int("port")
		concurrency := c.Int("concurrency")
		messageCount := c.Int64("message-count")

		log.Printf("spawning %d concurrent producers ...", concurrency)

		var wg sync.WaitGroup
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go produce(i, address, port, messageCount, &wg)
		}
		wg.Wait()
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
