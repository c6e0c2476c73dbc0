package device_test

import (
	"io"
	"sync"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/loramon/at"
	"i4.energy/across/loramon/device"
)

type MockSequenceBuilder struct {
	transport *device.MockTransport
	calls     []any
}

func NewMockSequence(transport *device.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

func (b *MockSequenceBuilder) write(cmd string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd)).Return(len(cmd), nil),
	)
	return b
}

func (b *MockSequenceBuilder) ModeTest() *MockSequenceBuilder {
	return b.write("AT+MODE=TEST\r\n")
}

func (b *MockSequenceBuilder) RFConfig() *MockSequenceBuilder {
	return b.write(at.RFConfig(at.DefaultRadioConfig()))
}

func (b *MockSequenceBuilder) ReceiveMode() *MockSequenceBuilder {
	return b.write("AT+TEST=RXLRPKT\r\n")
}

// FailWrite expects cmd to be written and fails the write.
func (b *MockSequenceBuilder) FailWrite(cmd string, err error) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd)).Return(0, err),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// blockingReads makes every Read block until Close is called, the way an
// idle serial port behaves once the session's reader goroutine is running.
func blockingReads(transport *device.MockTransport) {
	closed := make(chan struct{})
	var once sync.Once

	transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-closed
		return 0, io.EOF
	}).AnyTimes()
	transport.EXPECT().Close().DoAndReturn(func() error {
		once.Do(func() { close(closed) })
		return nil
	})
}
