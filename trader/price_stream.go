package trader

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultBitflyerWSURL bitFlyer Lightning 行情 WebSocket
const DefaultBitflyerWSURL = "wss://ws.lightstream.bitflyer.com/json-rpc"

// PriceStream 行情流
// 订阅一个 ticker 频道并持续缓存最新成交价，读价不再每次打 REST
type PriceStream struct {
	conn *websocket.Conn

	mu    sync.RWMutex
	last  float64
	valid bool

	done chan struct{}
}

type subscribeRequest struct {
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

type channelMessage struct {
	Method string `json:"method"`
	Params struct {
		Channel string `json:"channel"`
		Message struct {
			LTP float64 `json:"ltp"`
		} `json:"message"`
	} `json:"params"`
}

// DialPriceStream 连接行情服务器并订阅频道
// 例: channel = "lightning_ticker_BTC_JPY"
func DialPriceStream(url, channel string) (*PriceStream, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(subscribeRequest{
		Method: "subscribe",
		Params: map[string]string{"channel": channel},
	}); err != nil {
		conn.Close()
		return nil, err
	}

	ps := &PriceStream{
		conn: conn,
		done: make(chan struct{}),
	}
	go ps.readLoop()
	return ps, nil
}

func (ps *PriceStream) readLoop() {
	defer close(ps.done)
	for {
		var msg channelMessage
		if err := ps.conn.ReadJSON(&msg); err != nil {
			logrus.WithError(err).Warn("price stream closed")
			return
		}
		if msg.Params.Message.LTP <= 0 {
			continue
		}
		ps.mu.Lock()
		ps.last = msg.Params.Message.LTP
		ps.valid = true
		ps.mu.Unlock()
	}
}

// Last 最近一次收到的成交价，未收到任何报价时 ok 为 false
func (ps *PriceStream) Last() (float64, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.last, ps.valid
}

// Close 断开连接并等待读循环退出
func (ps *PriceStream) Close() error {
	err := ps.conn.Close()
	<-ps.done
	return err
}
