package sigchan

// Chan 合并式信号：多次 Emit 在被消费前只保留一次
type Chan struct {
	c chan struct{}
}

// New 创建信号 channel，bufferSize 为可累积的信号数
func New(bufferSize int) *Chan {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 非阻塞发送，缓冲已满时丢弃
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 用于 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Drain 丢弃所有未消费的信号，返回丢弃数量
func (c *Chan) Drain() int {
	n := 0
	for {
		select {
		case <-c.c:
			n++
		default:
			return n
		}
	}
}
