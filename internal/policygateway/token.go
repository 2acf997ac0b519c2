// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policygateway

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	claimTool = "tool"
)

// tokenSigner issues and verifies HS256 approval tokens scoped to one
// actor and one tool, mirroring the Claims shape the teacher's JWKS
// validator extracts, but signing locally with a symmetric key since
// approval tokens are minted and consumed entirely within this process
// rather than issued by an external identity provider.
type tokenSigner struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

func newTokenSigner(key []byte, issuer string, ttl time.Duration) *tokenSigner {
	return &tokenSigner{key: key, issuer: issuer, ttl: ttl}
}

func (s *tokenSigner) issue(actorID, tool string) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Issuer(s.issuer).
		Subject(actorID).
		Claim(claimTool, tool).
		IssuedAt(now).
		Expiration(now.Add(s.ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("policygateway: build approval token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.key))
	if err != nil {
		return "", fmt.Errorf("policygateway: sign approval token: %w", err)
	}
	return string(signed), nil
}

func (s *tokenSigner) verify(token, actorID, tool string) bool {
	if token == "" {
		return false
	}
	parsed, err := jwt.Parse([]byte(token), jwt.WithKey(jwa.HS256, s.key), jwt.WithValidate(true))
	if err != nil {
		return false
	}
	if parsed.Subject() != actorID {
		return false
	}
	claim, ok := parsed.Get(claimTool)
	if !ok {
		return false
	}
	toolClaim, ok := claim.(string)
	return ok && toolClaim == tool
}
