package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const usage = `lendctl drives a running lendgatewayd instance.

Commands:
  protocol                     show the protocol parameter snapshot
  position                     show the tracked account position
  balances                     show wallet balances
  refresh                      force a state refresh
  evaluate <action> <amount>   dry-run an action (deposit|withdraw|borrow|repay)
  submit   <action> <amount>   submit an action
  max-borrow                   show the remaining borrowing headroom
  max-safe-withdraw            show the buffered safe withdrawal limit
  repay-pct <pct>              show the repay percentage shortcut amount
`

func main() {
	var baseURL string
	flag.StringVar(&baseURL, "gateway", "http://127.0.0.1:8655", "gateway base URL")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := &cli{
		base:  strings.TrimRight(baseURL, "/"),
		token: strings.TrimSpace(os.Getenv("LENDGATEWAY_TOKEN")),
		http:  &http.Client{Timeout: 5 * time.Minute},
	}

	var err error
	switch args[0] {
	case "protocol":
		err = client.get("/v1/protocol")
	case "position":
		err = client.get("/v1/position")
	case "balances":
		err = client.get("/v1/balances")
	case "refresh":
		err = client.post("/v1/refresh", nil)
	case "max-borrow":
		err = client.get("/v1/shortcuts/max-borrow")
	case "max-safe-withdraw":
		err = client.get("/v1/shortcuts/max-safe-withdraw")
	case "repay-pct":
		if len(args) != 2 {
			err = fmt.Errorf("usage: repay-pct <pct>")
			break
		}
		err = client.get("/v1/shortcuts/repay-percentage?pct=" + url.QueryEscape(args[1]))
	case "evaluate", "submit":
		if len(args) != 3 {
			err = fmt.Errorf("usage: %s <action> <amount>", args[0])
			break
		}
		body := map[string]string{"amount": args[2]}
		err = client.post("/v1/actions/"+url.PathEscape(args[1])+"/"+args[0], body)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "lendctl: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	base  string
	token string
	http  *http.Client
}

func (c *cli) get(path string) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *cli) post(path string, body any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *cli) do(req *http.Request) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Println(string(raw))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	return nil
}
