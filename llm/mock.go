package llm

import "context"

// Mock is a test double for Client. If CompleteFunc is nil, Complete
// returns a fixed canned response (or an error, if set), and every call
// is still recorded for assertions.
type Mock struct {
	CompleteFunc func(ctx context.Context, req Request) (Response, error)
	CannedText   string
	CannedErr    error

	CallCount   int
	LastReq     Request
	CallHistory []Request
}

// NewMock returns a Mock that echoes CannedText on every call.
func NewMock(cannedText string) *Mock {
	return &Mock{CannedText: cannedText}
}

// NewMockWithFunc returns a Mock that delegates to fn.
func NewMockWithFunc(fn func(ctx context.Context, req Request) (Response, error)) *Mock {
	return &Mock{CompleteFunc: fn}
}

func (m *Mock) Complete(ctx context.Context, req Request) (Response, error) {
	m.CallCount++
	m.LastReq = req
	m.CallHistory = append(m.CallHistory, req)

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if m.CannedErr != nil {
		return Response{}, m.CannedErr
	}
	return Response{Text: m.CannedText}, nil
}
