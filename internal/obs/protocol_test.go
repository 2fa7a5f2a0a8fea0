package obs

import (
	"encoding/json"
	"testing"
)

func TestComputeAuth(t *testing.T) {
	// Vector computed from the documented derivation:
	// base64(sha256(base64(sha256(password+salt)) + challenge)).
	got := computeAuth(
		"supersecretpassword",
		"lM1GncleQOaCu9lT1yeUZhFYnqhsLLP1G5lAGo3ixaI=",
		"ztTBnnuqrqaKDzRM3xcVdbYm78gkc/UBzlj8NQ29mX8=",
	)
	want := "IvNlTJrtiZRWpFyHigcnUaqCVp//HTeRDfMIPdEYBQs="
	if got != want {
		t.Errorf("computeAuth() = %q, want %q", got, want)
	}
}

func TestComputeAuth_DiffersPerChallenge(t *testing.T) {
	a := computeAuth("pw", "salt", "challenge-a")
	b := computeAuth("pw", "salt", "challenge-b")
	if a == b {
		t.Error("auth string must depend on the challenge")
	}
}

func TestHelloDecoding(t *testing.T) {
	raw := []byte(`{
		"op": 0,
		"d": {
			"obsWebSocketVersion": "5.3.4",
			"rpcVersion": 1,
			"authentication": {
				"challenge": "abc",
				"salt": "def"
			}
		}
	}`)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if env.Op != opHello {
		t.Fatalf("op = %d, want %d", env.Op, opHello)
	}

	var hello helloData
	if err := json.Unmarshal(env.D, &hello); err != nil {
		t.Fatalf("decoding hello: %v", err)
	}
	if hello.RPCVersion != 1 {
		t.Errorf("rpcVersion = %d", hello.RPCVersion)
	}
	if hello.Authentication == nil || hello.Authentication.Challenge != "abc" {
		t.Errorf("authentication = %+v", hello.Authentication)
	}
}

func TestHelloDecoding_NoAuth(t *testing.T) {
	var hello helloData
	if err := json.Unmarshal([]byte(`{"obsWebSocketVersion":"5.3.4","rpcVersion":1}`), &hello); err != nil {
		t.Fatalf("decoding hello: %v", err)
	}
	if hello.Authentication != nil {
		t.Errorf("authentication = %+v, want nil when absent", hello.Authentication)
	}
}
