package client

import (
	"context"
	"errors"

	pool "github.com/jolestar/go-commons-pool/v2"
)

// clientFactory creates pooled connections to one server address
type clientFactory struct {
	addr string
}

func (f *clientFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	c, err := Connect(f.addr)
	if err != nil {
		return nil, err
	}
	return pool.NewPooledObject(c), nil
}

func (f *clientFactory) DestroyObject(ctx context.Context, object *pool.PooledObject) error {
	c, ok := object.Object.(*Client)
	if !ok {
		return errors.New("type mismatch")
	}
	return c.Close()
}

func (f *clientFactory) ValidateObject(ctx context.Context, object *pool.PooledObject) bool {
	return true
}

func (f *clientFactory) ActivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

func (f *clientFactory) PassivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

// Pool is a bounded pool of clients for callers that issue requests from
// several goroutines, such as the bench command
type Pool struct {
	inner *pool.ObjectPool
}

// NewPool creates a pool of at most size connections to addr
func NewPool(ctx context.Context, addr string, size int) *Pool {
	config := pool.NewDefaultPoolConfig()
	config.MaxTotal = size
	config.MaxIdle = size

	return &Pool{
		inner: pool.NewObjectPool(ctx, &clientFactory{addr: addr}, config),
	}
}

// Get borrows a client; return it with Put
func (p *Pool) Get(ctx context.Context) (*Client, error) {
	obj, err := p.inner.BorrowObject(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*Client)
	if !ok {
		return nil, errors.New("type mismatch")
	}
	return c, nil
}

// Put returns a borrowed client
func (p *Pool) Put(ctx context.Context, c *Client) error {
	return p.inner.ReturnObject(ctx, c)
}

// Close destroys all pooled connections
func (p *Pool) Close(ctx context.Context) {
	p.inner.Close(ctx)
}
