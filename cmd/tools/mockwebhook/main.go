package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Sends a signed provider callback against a local instance. tmoney events
// are signed "t=<unix>,v1=<hmac>" over "<t>.<body>"; flooz events carry a
// plain body HMAC.
func main() {
	base := flag.String("base", "http://localhost:8080", "Server base URL")
	provider := flag.String("provider", "tmoney", "Provider (tmoney, flooz)")
	secret := flag.String("secret", os.Getenv("MOCK_WEBHOOK_SECRET"), "Webhook secret")
	eventID := flag.String("event-id", "evt_"+randomHex(8), "Event ID")
	outcome := flag.String("outcome", "success", "Outcome (success, failed)")
	providerRef := flag.String("provider-ref", "txn_"+randomHex(8), "Provider transaction reference")
	amount := flag.Int("amount", 5000, "Amount in cents")
	currency := flag.String("currency", "XOF", "Currency")
	reason := flag.String("reason", "", "Failure reason (failed outcome only)")
	dryRun := flag.Bool("dry-run", false, "Only print signature header, don't send")

	flag.Parse()

	if *secret == "" {
		fmt.Fprintf(os.Stderr, "Error: secret not provided and MOCK_WEBHOOK_SECRET not set\n")
		os.Exit(1)
	}

	var body []byte
	var sigHeader, sigValue string
	var err error

	switch *provider {
	case "tmoney":
		event := "SUCCESS"
		if *outcome == "failed" {
			event = "FAILED"
		}
		body, err = json.Marshal(map[string]any{
			"id":       *eventID,
			"event":    event,
			"txn_id":   *providerRef,
			"amount":   *amount,
			"currency": *currency,
			"reason":   *reason,
		})
		if err == nil {
			t := time.Now().Unix()
			sigHeader = "X-TMoney-Signature"
			sigValue = fmt.Sprintf("t=%d,v1=%s", t, timestampedSig([]byte(*secret), t, body))
		}
	case "flooz":
		status := "SUCCESSFUL"
		if *outcome == "failed" {
			status = "FAILED"
		}
		body, err = json.Marshal(map[string]any{
			"id":             *eventID,
			"status":         status,
			"transaction_id": *providerRef,
			"amount":         *amount,
			"currency":       *currency,
			"message":        *reason,
		})
		if err == nil {
			sigHeader = "X-Flooz-Signature"
			sigValue = bodySig([]byte(*secret), body)
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown provider %q\n", *provider)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling payload: %v\n", err)
		os.Exit(1)
	}

	url := *base + "/payments/webhook/" + *provider

	fmt.Printf("%s: %s\n", sigHeader, sigValue)
	fmt.Printf("Body: %s\n", string(body))

	if *dryRun {
		fmt.Println("\n[DRY RUN] Not sending request")
		return
	}

	fmt.Printf("\nSending to %s...\n", url)
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating request: %v\n", err)
		os.Exit(1)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sigHeader, sigValue)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Response: %s\n", string(respBody))

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

func timestampedSig(secret []byte, t int64, body []byte) string {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(strconv.FormatInt(t, 10)))
	m.Write([]byte("."))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func bodySig(secret, body []byte) string {
	m := hmac.New(sha256.New, secret)
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n]
}
