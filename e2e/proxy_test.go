package e2e

import (
	"io"
	"net"
	"sync"
	"testing"
)

// tcpProxy forwards connections to upstream and can cut them all at once.
type tcpProxy struct {
	ln       net.Listener
	upstream string

	mu    sync.Mutex
	socks []net.Conn
	wg    sync.WaitGroup
}

func newTCPProxy(t *testing.T, upstream string) *tcpProxy {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start proxy: %v", err)
	}
	p := &tcpProxy{ln: ln, upstream: upstream}
	p.wg.Add(1)
	go p.acceptLoop()
	t.Cleanup(p.close)
	return p
}

func (p *tcpProxy) addr() string {
	return p.ln.Addr().String()
}

func (p *tcpProxy) acceptLoop() {
	defer p.wg.Done()
	for {
		down, err := p.ln.Accept()
		if err != nil {
			return
		}
		up, err := net.Dial("tcp", p.upstream)
		if err != nil {
			_ = down.Close()
			continue
		}

		p.mu.Lock()
		p.socks = append(p.socks, down, up)
		p.mu.Unlock()

		p.wg.Add(2)
		go p.pipe(up, down)
		go p.pipe(down, up)
	}
}

func (p *tcpProxy) pipe(dst, src net.Conn) {
	defer p.wg.Done()
	_, _ = io.Copy(dst, src)
	_ = dst.Close()
	_ = src.Close()
}

// kill resets every forwarded connection without a graceful shutdown.
// New connections are still accepted afterwards.
func (p *tcpProxy) kill() int {
	p.mu.Lock()
	socks := p.socks
	p.socks = nil
	p.mu.Unlock()

	for _, s := range socks {
		if tcp, ok := s.(*net.TCPConn); ok {
			_ = tcp.SetLinger(0)
		}
		_ = s.Close()
	}
	return len(socks) / 2
}

func (p *tcpProxy) close() {
	_ = p.ln.Close()
	p.kill()
	p.wg.Wait()
}
