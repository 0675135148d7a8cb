package solanarpc

import (
	"sync"

	"github.com/gagliardetto/solana-go/rpc"
)

// rpcPool rotates requests across the configured RPC endpoints.
type rpcPool struct {
	clients []*rpc.Client
	mutex   sync.Mutex
	index   int
}

func newRPCPool(rpcList []string) *rpcPool {
	clients := make([]*rpc.Client, 0, len(rpcList))
	for _, url := range rpcList {
		clients = append(clients, rpc.New(url))
	}
	return &rpcPool{clients: clients}
}

func (p *rpcPool) get() *rpc.Client {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	client := p.clients[p.index]
	p.index = (p.index + 1) % len(p.clients)
	return client
}
