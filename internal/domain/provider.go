package domain

import (
	"fmt"
	"strings"
)

// Provider identifies the service that authenticated a member
type Provider int

const (
	ProviderUnknown Provider = iota
	ProviderGoogle
	ProviderFacebook
	ProviderTwitter
	ProviderGitHub
	ProviderMicrosoft
	ProviderApple
	ProviderYahoo
	ProviderMock
)

// CredentialKind describes what a provider hands back after sign-in
type CredentialKind string

const (
	CredentialOAuth2 CredentialKind = "oauth2"
	CredentialOAuth1 CredentialKind = "oauth1"
	CredentialOIDC   CredentialKind = "oidc"
	CredentialNone   CredentialKind = "none"
)

// ProviderCapability is the static description of a provider
type ProviderCapability struct {
	Name        string         `json:"id"`
	DisplayName string         `json:"name"`
	Host        string         `json:"host,omitempty"`
	Scopes      []string       `json:"scopes,omitempty"`
	Credential  CredentialKind `json:"credential"`
	Offline     bool           `json:"offline,omitempty"`
}

var providerCapabilities = map[Provider]ProviderCapability{
	ProviderGoogle: {
		Name: "google", DisplayName: "Google", Host: "google.com",
		Scopes: []string{"profile", "email"}, Credential: CredentialOIDC,
	},
	ProviderFacebook: {
		Name: "facebook", DisplayName: "Facebook", Host: "facebook.com",
		Scopes: []string{"email", "public_profile"}, Credential: CredentialOAuth2,
	},
	ProviderTwitter: {
		Name: "twitter", DisplayName: "Twitter", Host: "twitter.com",
		Credential: CredentialOAuth1,
	},
	ProviderGitHub: {
		Name: "github", DisplayName: "GitHub", Host: "github.com",
		Scopes: []string{"user:email"}, Credential: CredentialOAuth2,
	},
	ProviderMicrosoft: {
		Name: "microsoft", DisplayName: "Microsoft", Host: "microsoft.com",
		Credential: CredentialOIDC,
	},
	ProviderApple: {
		Name: "apple", DisplayName: "Apple", Host: "apple.com",
		Credential: CredentialOIDC,
	},
	ProviderYahoo: {
		Name: "yahoo", DisplayName: "Yahoo", Host: "yahoo.com",
		Credential: CredentialOIDC,
	},
	ProviderMock: {
		Name: "mock", DisplayName: "Offline demo", Credential: CredentialNone, Offline: true,
	},
}

// Providers lists every known provider in display order
func Providers() []Provider {
	return []Provider{
		ProviderGoogle,
		ProviderFacebook,
		ProviderTwitter,
		ProviderGitHub,
		ProviderMicrosoft,
		ProviderApple,
		ProviderYahoo,
		ProviderMock,
	}
}

// ParseProvider resolves a wire name ("google") or host ("google.com")
func ParseProvider(s string) (Provider, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, c := range providerCapabilities {
		if s == c.Name || (c.Host != "" && s == c.Host) {
			return p, nil
		}
	}
	return ProviderUnknown, fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
}

// Capability returns the static capability entry for p
func (p Provider) Capability() (ProviderCapability, bool) {
	c, ok := providerCapabilities[p]
	return c, ok
}

// Offline reports whether p is the simulated provider
func (p Provider) Offline() bool {
	return providerCapabilities[p].Offline
}

func (p Provider) String() string {
	if c, ok := providerCapabilities[p]; ok {
		return c.Name
	}
	return "unknown"
}

// MarshalText encodes the provider by wire name
func (p Provider) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a provider wire name. An empty value stays unknown.
func (p *Provider) UnmarshalText(text []byte) error {
	if len(text) == 0 || string(text) == "unknown" {
		*p = ProviderUnknown
		return nil
	}
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
