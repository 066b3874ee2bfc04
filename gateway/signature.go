package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// webhookTolerance bounds how stale a signed webhook may be before it is
// rejected as a possible replay of a captured request.
const webhookTolerance = 5 * time.Minute

// VerifyWebhookSignature checks the processor's signature header against the
// raw request body. Header format: "t=<unix>,v1=<hex hmac-sha256>", where the
// signed payload is "<t>.<body>".
func VerifyWebhookSignature(body []byte, header, secret string) error {
	if secret == "" {
		return fmt.Errorf("webhook secret is not configured")
	}
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, _ = strconv.ParseInt(kv[1], 10, 64)
		case "v1":
			sig = kv[1]
		}
	}
	if ts == 0 || sig == "" {
		return fmt.Errorf("malformed signature header")
	}

	age := time.Since(time.Unix(ts, 0))
	if age > webhookTolerance || age < -webhookTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
