// Package resolver implements C5, the Pre-start Resolver (spec §4.5): a
// one-shot sequence of Cumulocity REST calls that turns an external device
// identity into a RemoteAccessBinding, acquiring a session along the way.
//
// Grounded on the original Python login/resolution flow
// (original_source/c8ylp — tenant/loginOptions, tenant/oauth with TFA
// retry, user/currentUser role check, identity/externalIds, then
// inventory/managedObjects c8y_RemoteAccessList selection) and on the
// teacher's interactive-prompt idiom (cmd/bamgate/cmd_login.go's
// huh-based device-code/credential flow), reimplemented against C11's
// restclient instead of bamgate's GitHub OAuth device flow.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/softwareag/c8ylp/internal/cfg"
	"github.com/softwareag/c8ylp/internal/exitcode"
	"github.com/softwareag/c8ylp/internal/restclient"
)

// RoleRemoteAccessAdmin is the role an operator must hold to use the
// remote-access proxy (spec §3).
const RoleRemoteAccessAdmin = "ROLE_REMOTE_ACCESS_ADMIN"

// Binding is C5's output (spec §3 RemoteAccessBinding).
type Binding struct {
	ManagedObjectID string
	RemoteConfigID  string
}

// Prompter supplies interactive credential/TFA input (spec §4.5, §6.3
// --disable-prompts). An implementation backed by huh is provided by the
// CLI layer; tests supply a canned Prompter.
type Prompter interface {
	PromptUser() (string, error)
	PromptPassword() (string, error)
	PromptTFACode() (string, error)
}

// Resolver runs C5's resolution sequence.
type Resolver struct {
	client   *restclient.Client
	prompter Prompter
	// disablePrompts mirrors --disable-prompts: missing credentials become
	// a hard NO_SESSION failure instead of an interactive prompt.
	disablePrompts bool
}

// New constructs a Resolver against an already-created restclient.Client
// (so callers control TLS/timeout options once, shared with other
// start-up calls).
func New(client *restclient.Client, prompter Prompter, disablePrompts bool) *Resolver {
	return &Resolver{client: client, prompter: prompter, disablePrompts: disablePrompts}
}

// Resolve runs the full C5 sequence and returns the RemoteAccessBinding
// plus the session credentials now carrying a usable token/cookie.
func (r *Resolver) Resolve(ctx context.Context, proxyCfg cfg.ProxyConfig, creds cfg.SessionCredentials) (Binding, cfg.SessionCredentials, error) {
	tenant, err := r.checkLoginOptions(ctx, proxyCfg.Tenant)
	if err != nil {
		return Binding{}, creds, err
	}
	creds.Tenant = tenant

	if !creds.HasToken() {
		creds, err = r.login(ctx, creds)
		if err != nil {
			return Binding{}, creds, err
		}
	}

	if err := r.checkRole(ctx, creds); err != nil {
		return Binding{}, creds, err
	}

	managedObjectID, err := r.resolveExternalID(ctx, proxyCfg.ExternalType, proxyCfg.Device, creds)
	if err != nil {
		return Binding{}, creds, err
	}

	configID, err := r.selectPassthroughConfig(ctx, managedObjectID, proxyCfg.ConfigName, creds)
	if err != nil {
		return Binding{}, creds, err
	}

	return Binding{ManagedObjectID: managedObjectID, RemoteConfigID: configID}, creds, nil
}

type loginOptionsResponse struct {
	LoginOptions []struct {
		InitRequest string `json:"initRequest"`
		Type        string `json:"type"`
	} `json:"loginOptions"`
}

// checkLoginOptions fetches /tenant/loginOptions and extracts the tenant
// id from the first option's initRequest query string (spec §4.5, §6.1).
func (r *Resolver) checkLoginOptions(ctx context.Context, tenantHint string) (string, error) {
	var resp loginOptionsResponse
	if err := r.client.Get(ctx, "/tenant/loginOptions", &resp, nil); err != nil {
		return "", exitcode.Wrap(exitcode.NoSession, "fetching tenant login options: %w", err)
	}

	if tenantHint != "" {
		return tenantHint, nil
	}
	for _, opt := range resp.LoginOptions {
		if idx := strings.Index(opt.InitRequest, "tenantId="); idx >= 0 {
			value := opt.InitRequest[idx+len("tenantId="):]
			if amp := strings.IndexByte(value, '&'); amp >= 0 {
				value = value[:amp]
			}
			return value, nil
		}
	}
	return "", exitcode.Wrap(exitcode.NoSession, "could not determine tenant id from login options")
}

// login performs the tenant/oauth exchange, retrying for TFA up to three
// attempts total (spec §4.5, §8 property S7).
func (r *Resolver) login(ctx context.Context, creds cfg.SessionCredentials) (cfg.SessionCredentials, error) {
	if creds.User == "" {
		user, err := r.promptUser()
		if err != nil {
			return creds, err
		}
		creds.User = user
	}
	if creds.Password == "" {
		password, err := r.promptPassword()
		if err != nil {
			return creds, err
		}
		creds.Password = password
	}

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		form := url.Values{
			"grant_type": {"PASSWORD"},
			"username":   {creds.User},
			"password":   {creds.Password},
		}
		if creds.TFACode != "" {
			form.Set("tfa_code", creds.TFACode)
		}

		err := r.client.PostForm(ctx, "/tenant/oauth?tenant_id="+url.QueryEscape(creds.Tenant), form, nil, nil)
		if err == nil {
			creds.XSRFToken = r.client.XSRFToken()
			return creds, nil
		}

		var reqErr *restclient.RequestError
		if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusUnauthorized {
			return creds, exitcode.Wrap(exitcode.NoSession, "tenant oauth login failed: %w", err)
		}

		if strings.Contains(strings.ToUpper(reqErr.Body), "TFA") {
			code, perr := r.promptTFACode()
			if perr != nil {
				return creds, perr
			}
			creds.TFACode = code
			continue
		}

		// Bad username/password: re-prompt (unless prompts are disabled).
		if r.disablePrompts || attempt == maxAttempts {
			return creds, exitcode.Wrap(exitcode.NoSession, "authentication rejected: %w", err)
		}
		user, uerr := r.promptUser()
		if uerr != nil {
			return creds, uerr
		}
		password, perr := r.promptPassword()
		if perr != nil {
			return creds, perr
		}
		creds.User, creds.Password = user, password
	}

	return creds, exitcode.Wrap(exitcode.NoSession, "authentication failed after %d attempts", maxAttempts)
}

func (r *Resolver) promptUser() (string, error) {
	if r.disablePrompts || r.prompter == nil {
		return "", exitcode.Wrap(exitcode.NoSession, "missing username and prompts are disabled")
	}
	return r.prompter.PromptUser()
}

func (r *Resolver) promptPassword() (string, error) {
	if r.disablePrompts || r.prompter == nil {
		return "", exitcode.Wrap(exitcode.NoSession, "missing password and prompts are disabled")
	}
	return r.prompter.PromptPassword()
}

func (r *Resolver) promptTFACode() (string, error) {
	if r.disablePrompts || r.prompter == nil {
		return "", exitcode.Wrap(exitcode.NoSession, "missing TFA code and prompts are disabled")
	}
	return r.prompter.PromptTFACode()
}

type currentUserResponse struct {
	EffectiveRoles []struct {
		ID string `json:"id"`
	} `json:"effectiveRoles"`
}

// checkRole verifies the operator holds ROLE_REMOTE_ACCESS_ADMIN (spec
// §3, §4.5).
func (r *Resolver) checkRole(ctx context.Context, creds cfg.SessionCredentials) error {
	var resp currentUserResponse
	if err := r.client.Get(ctx, "/user/currentUser", &resp, authHeader(creds)); err != nil {
		return exitcode.Wrap(exitcode.NoSession, "fetching current user: %w", err)
	}
	for _, role := range resp.EffectiveRoles {
		if role.ID == RoleRemoteAccessAdmin {
			return nil
		}
	}
	return exitcode.Wrap(exitcode.MissingRoleRemoteAccessAdmin, "operator lacks role %s", RoleRemoteAccessAdmin)
}

type externalIDResponse struct {
	ManagedObject struct {
		ID string `json:"id"`
	} `json:"managedObject"`
}

// resolveExternalID looks up the managed-object id for the device's
// external identity (spec §4.5, §6.1).
func (r *Resolver) resolveExternalID(ctx context.Context, externalType, serial string, creds cfg.SessionCredentials) (string, error) {
	path := fmt.Sprintf("/identity/externalIds/%s/%s", url.PathEscape(externalType), url.PathEscape(serial))
	var resp externalIDResponse
	if err := r.client.Get(ctx, path, &resp, authHeader(creds)); err != nil {
		var reqErr *restclient.RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound {
			return "", exitcode.Wrap(exitcode.NoSession, "device with external id %s/%s not found: %w", externalType, serial, err)
		}
		return "", exitcode.Wrap(exitcode.NoSession, "resolving external id: %w", err)
	}
	return resp.ManagedObject.ID, nil
}

type remoteAccessEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
}

type managedObjectResponse struct {
	RemoteAccessList []remoteAccessEntry `json:"c8y_RemoteAccessList"`
}

// selectPassthroughConfig picks the requested (or first) PASSTHROUGH
// remote-access configuration from the device's managed object (spec §3,
// §4.5).
func (r *Resolver) selectPassthroughConfig(ctx context.Context, managedObjectID, wantName string, creds cfg.SessionCredentials) (string, error) {
	path := "/inventory/managedObjects/" + url.PathEscape(managedObjectID)
	var resp managedObjectResponse
	if err := r.client.Get(ctx, path, &resp, authHeader(creds)); err != nil {
		return "", exitcode.Wrap(exitcode.NoSession, "fetching managed object: %w", err)
	}

	var passthrough []remoteAccessEntry
	for _, e := range resp.RemoteAccessList {
		if strings.EqualFold(e.Protocol, "PASSTHROUGH") {
			passthrough = append(passthrough, e)
		}
	}

	if len(resp.RemoteAccessList) == 0 {
		return "", exitcode.Wrap(exitcode.DeviceMissingRemoteAccessFragment, "device has no c8y_RemoteAccessList fragment")
	}
	if len(passthrough) == 0 {
		return "", exitcode.Wrap(exitcode.DeviceNoPassthroughConfig, "device has no PASSTHROUGH remote-access configuration")
	}

	if wantName == "" {
		return passthrough[0].ID, nil
	}
	for _, e := range passthrough {
		if strings.EqualFold(e.Name, wantName) {
			return e.ID, nil
		}
	}
	return "", exitcode.Wrap(exitcode.DeviceNoMatchingPassthroughConfig, "no PASSTHROUGH configuration named %q", wantName)
}

func authHeader(creds cfg.SessionCredentials) http.Header {
	h := http.Header{}
	if creds.HasToken() {
		h.Set("Authorization", "Bearer "+creds.Token)
	} else if creds.XSRFToken != "" {
		h.Set("X-XSRF-TOKEN", creds.XSRFToken)
	}
	return h
}

// PersistableFields returns the env-file keys/values C5 may persist after
// a successful resolve (spec §4.5: never the password).
func PersistableFields(host string, creds cfg.SessionCredentials) map[string]string {
	fields := map[string]string{}
	if host != "" {
		fields["C8Y_HOST"] = host
	}
	if creds.User != "" {
		fields["C8Y_USER"] = creds.User
	}
	if creds.Tenant != "" {
		fields["C8Y_TENANT"] = creds.Tenant
	}
	if creds.Token != "" {
		fields["C8Y_TOKEN"] = creds.Token
	}
	return fields
}
