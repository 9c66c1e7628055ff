package main

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"keyrelay/internal/dto"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = runRegister(args)
	case "bundle":
		err = runBundle(args)
	case "bundles":
		err = runBundles(args)
	case "send":
		err = runSend(args)
	case "fetch":
		err = runFetch(args)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  register   Register a device with generated placeholder key material")
	fmt.Fprintln(os.Stderr, "  bundle     Fetch a pre-key bundle for one device")
	fmt.Fprintln(os.Stderr, "  bundles    Fetch pre-key bundles for all devices of a principal")
	fmt.Fprintln(os.Stderr, "  send       Fan a ciphertext out to target devices")
	fmt.Fprintln(os.Stderr, "  fetch      Fetch the ciphertext addressed to a device")
	os.Exit(2)
}

func runRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:8083", "server base URL")
	token := fs.String("token", "", "bearer token for the registering principal")
	count := fs.Int("prekeys", 10, "number of one-time prekeys to upload")
	regID := fs.Int("registration-id", 0, "registration id (random when 0)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	registrationID := *regID
	if registrationID == 0 {
		registrationID = int(time.Now().UnixNano()%16380) + 1
	}

	prekeys := make([]dto.OneTimePreKey, 0, *count)
	for i := 1; i <= *count; i++ {
		prekeys = append(prekeys, dto.OneTimePreKey{KeyID: i, PublicKey: randomKey()})
	}

	req := dto.RegisterDeviceRequest{
		RegistrationID:    registrationID,
		IdentityKeyPublic: randomKey(),
		SignedPreKey: dto.SignedPreKey{
			KeyID:     1,
			PublicKey: randomKey(),
			Signature: randomKey(),
		},
		PreKeys: prekeys,
	}

	var res dto.RegisterDeviceResponse
	if err := call(http.MethodPost, *baseURL+"/api/signal/devices", *token, req, &res); err != nil {
		return err
	}
	fmt.Printf("registered device %d (%s)\n", res.DeviceID, res.DeviceName)
	return nil
}

func runBundle(args []string) error {
	fs := flag.NewFlagSet("bundle", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:8083", "server base URL")
	token := fs.String("token", "", "bearer token")
	principal := fs.String("principal", "", "target principal")
	deviceID := fs.Int("device", 1, "target device id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *principal == "" {
		return fmt.Errorf("-principal is required")
	}

	var res dto.PreKeyBundle
	endpoint := fmt.Sprintf("%s/api/signal/bundles/%s/%d", strings.TrimRight(*baseURL, "/"), *principal, *deviceID)
	if err := call(http.MethodGet, endpoint, *token, nil, &res); err != nil {
		return err
	}
	return printJSON(res)
}

func runBundles(args []string) error {
	fs := flag.NewFlagSet("bundles", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:8083", "server base URL")
	token := fs.String("token", "", "bearer token")
	principal := fs.String("principal", "", "target principal")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *principal == "" {
		return fmt.Errorf("-principal is required")
	}

	var res dto.AllBundlesResponse
	endpoint := fmt.Sprintf("%s/api/signal/bundles/%s", strings.TrimRight(*baseURL, "/"), *principal)
	if err := call(http.MethodGet, endpoint, *token, nil, &res); err != nil {
		return err
	}
	return printJSON(res)
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:8083", "server base URL")
	token := fs.String("token", "", "bearer token for the sending principal")
	messageID := fs.String("message", "", "message id (generated when empty)")
	senderDevice := fs.Int("sender-device", 1, "sending device id")
	target := fs.String("target", "", "target principal")
	devices := fs.String("devices", "1", "comma-separated target device ids")
	ciphertext := fs.String("ciphertext", "", "base64 ciphertext (random when empty)")
	msgType := fs.Int("type", 3, "message type tag (1 pre-key, 3 normal)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return fmt.Errorf("-target is required")
	}

	id := *messageID
	if id == "" {
		id = uuid.NewString()
	}
	payload := *ciphertext
	if payload == "" {
		payload = randomKey()
	}

	req := dto.StoreCiphertextsRequest{
		MessageID:      id,
		SenderDeviceID: *senderDevice,
	}
	for _, d := range strings.Split(*devices, ",") {
		var deviceID int
		if _, err := fmt.Sscanf(strings.TrimSpace(d), "%d", &deviceID); err != nil {
			return fmt.Errorf("invalid device id %q", d)
		}
		req.Ciphertexts = append(req.Ciphertexts, dto.CiphertextEntry{
			TargetPrincipal: *target,
			TargetDeviceID:  deviceID,
			Ciphertext:      payload,
			MessageType:     *msgType,
		})
	}

	var res dto.StoreCiphertextsResponse
	if err := call(http.MethodPost, *baseURL+"/api/signal/messages", *token, req, &res); err != nil {
		return err
	}
	fmt.Printf("stored %d envelope(s) for message %s\n", res.Stored, res.MessageID)
	return nil
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:8083", "server base URL")
	token := fs.String("token", "", "bearer token for the fetching principal")
	messageID := fs.String("message", "", "message id")
	deviceID := fs.Int("device", 1, "fetching device id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *messageID == "" {
		return fmt.Errorf("-message is required")
	}

	var res dto.FetchCiphertextResponse
	endpoint := fmt.Sprintf("%s/api/signal/messages/%s?deviceId=%d", strings.TrimRight(*baseURL, "/"), *messageID, *deviceID)
	if err := call(http.MethodGet, endpoint, *token, nil, &res); err != nil {
		return err
	}
	return printJSON(res)
}

func call(method, endpoint, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close response body: %v\n", cerr)
		}
	}()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		if len(data) == 0 {
			data = []byte(resp.Status)
		}
		return fmt.Errorf("%s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func randomKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
