package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
)

// obs-websocket v5 opcodes.
const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opEvent           = 5
	opRequest         = 6
	opRequestResponse = 7
)

// rpcVersion is the obs-websocket RPC version this client speaks.
const rpcVersion = 1

// Event subscription bits (obs-websocket EventSubscription).
const (
	subGeneral     = 1 << 0
	subConfig      = 1 << 1
	subScenes      = 1 << 2
	subTransitions = 1 << 4
	subOutputs     = 1 << 6
	subSceneItems  = 1 << 7
	subUI          = 1 << 10
)

// eventSubscriptions is the set of event categories the client needs:
// scene and scene-item changes, scene collection swaps (a config
// event), transitions, stream output state, and studio mode toggles
// (a UI event).
const eventSubscriptions = subGeneral | subConfig | subScenes | subTransitions |
	subOutputs | subSceneItems | subUI

// envelope is the outer obs-websocket message frame.
type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// helloData is the server's opening message (op 0).
type helloData struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

// identifyData is the client's handshake response (op 1).
type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

// eventData is an event frame (op 5).
type eventData struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData"`
}

// requestData is a request frame (op 6).
type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

// responseData is a request response frame (op 7).
type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// computeAuth derives the Identify authentication string:
// base64(sha256(base64(sha256(password + salt)) + challenge)).
func computeAuth(password, salt, challenge string) string {
	secretHash := sha256.Sum256([]byte(password + salt))
	secret := base64.StdEncoding.EncodeToString(secretHash[:])

	authHash := sha256.Sum256([]byte(secret + challenge))
	return base64.StdEncoding.EncodeToString(authHash[:])
}
