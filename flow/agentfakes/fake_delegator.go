package agentfakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/jomafilms/openclaw-multitenant/agent"
	"github.com/jomafilms/openclaw-multitenant/flow"
)

var _ flow.Delegator = (*FakeDelegator)(nil)

// FakeDelegator is an in-memory stand-in for the agent client. Tests
// can preset errors and inspect call counts, in particular to assert
// that ExchangeCode was never reached.
type FakeDelegator struct {
	lock sync.Mutex

	InitPKCEErr     error
	ExchangeCodeErr error
	AccountEmail    string

	initCalls     int
	exchangeCalls int
}

func NewFakeDelegator() *FakeDelegator {
	return &FakeDelegator{AccountEmail: "user@example.com"}
}

func (f *FakeDelegator) InitPKCE(_ context.Context, ownerUserID, provider, _ string) (*agent.PKCEInit, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.initCalls++
	if f.InitPKCEErr != nil {
		return nil, f.InitPKCEErr
	}
	return &agent.PKCEInit{
		AgentFlowToken:      fmt.Sprintf("agent-flow-%s-%s-%d", ownerUserID, provider, f.initCalls),
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}, nil
}

func (f *FakeDelegator) ExchangeCode(_ context.Context, _, _, _, _ string) (*agent.ExchangeResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.exchangeCalls++
	if f.ExchangeCodeErr != nil {
		return nil, f.ExchangeCodeErr
	}
	return &agent.ExchangeResult{ProviderAccountEmail: f.AccountEmail}, nil
}

func (f *FakeDelegator) InitCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.initCalls
}

func (f *FakeDelegator) ExchangeCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.exchangeCalls
}
