package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// InfoKind names a server information endpoint.
type InfoKind string

const (
	InfoServices     InfoKind = "services"
	InfoServicesMore InfoKind = "services_more"
	InfoGroups       InfoKind = "groups"
	InfoTokens       InfoKind = "tokens"
	InfoServer       InfoKind = "server"
	InfoVersion      InfoKind = "version"
)

// InfoKinds lists every info endpoint.
var InfoKinds = []InfoKind{InfoServices, InfoServicesMore, InfoGroups, InfoTokens, InfoServer, InfoVersion}

var infoPaths = map[InfoKind]string{
	InfoServices:     "/server/info/services/",
	InfoServicesMore: "/server/info/services2/",
	InfoGroups:       "/server/info/groups/",
	InfoTokens:       "/server/info/tokens/",
	InfoServer:       "/server/info/server/",
	InfoVersion:      "/server/info/version/",
}

// Command names a server control endpoint.
type Command string

const (
	CommandStart        Command = "start"
	CommandStop         Command = "stop"
	CommandRestart      Command = "restart"
	CommandReloadTokens Command = "reload_tokens"
)

// Commands lists every control endpoint.
var Commands = []Command{CommandStart, CommandStop, CommandRestart, CommandReloadTokens}

const tokensPath = "/server/tokens/"

// TokensPayload is the body of token administration calls. Every field is optional.
type TokensPayload struct {
	Group         string `json:"group,omitempty"`
	GroupServices []int  `json:"group_services,omitempty"`
	User          string `json:"user,omitempty"`
	UserServices  []any  `json:"user_services,omitempty"`
	Superuser     string `json:"superuser,omitempty"`
	Admin         string `json:"admin,omitempty"`
}

// IsEmpty reports whether no field is set.
func (p TokensPayload) IsEmpty() bool {
	return p.Group == "" && len(p.GroupServices) == 0 &&
		p.User == "" && len(p.UserServices) == 0 &&
		p.Superuser == "" && p.Admin == ""
}

// Info fetches one server information document.
func (c *Client) Info(ctx context.Context, token string, kind InfoKind) (json.RawMessage, error) {
	path, ok := infoPaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown info kind: %q", kind)
	}
	return c.do(ctx, http.MethodGet, c.endpoint(path), token, nil)
}

// Command sends one server control command.
func (c *Client) Command(ctx context.Context, token string, cmd Command) (json.RawMessage, error) {
	known := false
	for _, k := range Commands {
		if cmd == k {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown command: %q", cmd)
	}
	return c.do(ctx, http.MethodGet, c.endpoint("/server/", string(cmd), "/"), token, nil)
}

// PutTokens adds or updates tokens on the server.
func (c *Client) PutTokens(ctx context.Context, token string, payload TokensPayload) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, c.endpoint(tokensPath), token, payload)
}

// DeleteTokens removes tokens from the server.
func (c *Client) DeleteTokens(ctx context.Context, token string, payload TokensPayload) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, c.endpoint(tokensPath), token, payload)
}
