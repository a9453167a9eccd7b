// Package console implements the kernel's serial console: a small
// byte-oriented input ring fed by UART receive interrupts and an output
// path that writes through the SBI console_putchar ecall (or a platform
// hook for testing). Grounded on biscuit's console_t stub
// (src/... console device) generalized to the SBI-backed textbook
// console a RISC-V kernel actually has available at boot.
package console

import "sync"

// ringSize bounds how much unread input the console buffers before a
// reader drains it. 512 matches a typical terminal line-discipline
// buffer.
const ringSize = 512

// PutcharFunc is the platform hook that actually emits one byte; it
// defaults to a no-op, boot installs sbi.ConsolePutchar, and tests can
// replace it.
var PutcharFunc func(byte) = func(byte) {}

/// Console is the single system console. There is one instance, shared
/// by every task that reads/writes fd 0/1/2 via an fd.ConsoleFile wrapper.
type Console struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	buf      [ringSize]byte
	head, len int
}

var global = newConsole()

func newConsole() *Console {
	c := &Console{}
	c.notEmpty = sync.NewCond(&c.mu)
	return c
}

/// Global returns the system console instance.
func Global() *Console { return global }

/// Interrupt is called from the UART receive-interrupt handler (or, in
/// tests, directly) to push one received byte into the input ring.
func (c *Console) Interrupt(b byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.len == ringSize {
		// Drop the oldest byte rather than the newest: a human typing
		// ahead of a stalled reader expects recent keystrokes to survive.
		c.head = (c.head + 1) % ringSize
		c.len--
	}
	c.buf[(c.head+c.len)%ringSize] = b
	c.len++
	c.notEmpty.Signal()
}

/// Read copies up to len(p) buffered input bytes into p, blocking until
/// at least one byte is available.
func (c *Console) Read(p []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.len == 0 {
		c.notEmpty.Wait()
	}
	n := len(p)
	if n > c.len {
		n = c.len
	}
	for i := 0; i < n; i++ {
		p[i] = c.buf[(c.head+i)%ringSize]
	}
	c.head = (c.head + n) % ringSize
	c.len -= n
	return n
}

/// ReadReady reports whether Read would return immediately.
func (c *Console) ReadReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.len > 0
}

/// Write emits every byte of p to the console output, one ecall per
/// byte as SBI's console_putchar requires.
func (c *Console) Write(p []byte) int {
	for _, b := range p {
		PutcharFunc(b)
	}
	return len(p)
}
