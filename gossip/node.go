package gossip

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tolelom/latticenode/core"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// confirmReq is the confirm_req vote-solicitation payload.
type confirmReq struct {
	Root core.Hash `json:"root"`
}

// Node listens for incoming peers and manages outgoing connections,
// gossiping blocks and votes (spec §5).
type Node struct {
	nodeID     string
	listenAddr string
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int

	exclusion *Exclusion

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}

	// OnBlock/OnVote are invoked for every publish_block/vote message
	// received from a peer, wired to ledger.Processor.Process and
	// vote.Processor.Process respectively by cmd/node.
	OnBlock func(peer *Peer, blk *core.Block)
	OnVote  func(peer *Peer, v *core.Vote)
}

// NewNode creates a Node that will listen on listenAddr.
func NewNode(nodeID, listenAddr string, tlsCfg *tls.Config, exclusion *Exclusion) *Node {
	n := &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		exclusion:  exclusion,
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
	n.Handle(MsgPublishBlock, n.handleBlock)
	n.Handle(MsgVote, n.handleVote)
	return n
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr and registers the peer, refusing if addr is
// currently excluded (spec §4 supplemented feature: peer_exclusion).
func (n *Node) AddPeer(id, addr string) error {
	if n.exclusion != nil && n.exclusion.IsExcluded(addr) {
		return fmt.Errorf("gossip: peer %s is excluded", addr)
	}
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		if n.exclusion != nil {
			n.exclusion.RecordFailure(addr)
		}
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)

	hello, err := json.Marshal(map[string]string{"node_id": n.nodeID})
	if err != nil {
		log.Printf("[gossip] marshal hello: %v", err)
		return nil
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		log.Printf("[gossip] send hello to %s: %v", id, err)
	}
	return nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// broadcastRaw sends msg to all connected peers.
func (n *Node) broadcastRaw(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[gossip] broadcast to %s: %v", p.ID, err)
			if n.exclusion != nil {
				n.exclusion.RecordFailure(p.Addr)
			}
		}
	}
}

// Broadcast implements election.Solicitor: gossips the winning candidate
// block to every connected peer.
func (n *Node) Broadcast(blk *core.Block) {
	data, err := json.Marshal(blk.Encode())
	if err != nil {
		log.Printf("[gossip] marshal block wire: %v", err)
		return
	}
	payload, err := json.Marshal(struct {
		Type core.BlockType  `json:"type"`
		Wire json.RawMessage `json:"wire"`
	}{Type: blk.Type, Wire: data})
	if err != nil {
		log.Printf("[gossip] marshal publish_block envelope: %v", err)
		return
	}
	n.broadcastRaw(Message{Type: MsgPublishBlock, Payload: payload})
}

// RequestVotes implements election.Solicitor: asks every connected peer
// (as a stand-in for "the top-N reps by weight that haven't yet voted" —
// peer-to-representative mapping is a discovery concern this package does
// not implement) to vote on root.
func (n *Node) RequestVotes(root core.Hash, _ []core.Account) {
	payload, err := json.Marshal(confirmReq{Root: root})
	if err != nil {
		log.Printf("[gossip] marshal confirm_req: %v", err)
		return
	}
	n.broadcastRaw(Message{Type: MsgConfirmReq, Payload: payload})
}

// BroadcastVote gossips v to every connected peer.
func (n *Node) BroadcastVote(v *core.Vote) {
	wire, err := v.Encode()
	if err != nil {
		log.Printf("[gossip] encode vote: %v", err)
		return
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		log.Printf("[gossip] marshal vote envelope: %v", err)
		return
	}
	n.broadcastRaw(Message{Type: MsgVote, Payload: payload})
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[gossip] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		remote := conn.RemoteAddr().String()
		if n.exclusion != nil && n.exclusion.IsExcluded(remote) {
			conn.Close()
			continue
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[gossip] max peers (%d) reached, rejecting %s", n.maxPeers, remote)
			conn.Close()
			continue
		}
		peer := NewPeer(remote, remote, conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[gossip] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}

func (n *Node) handleBlock(peer *Peer, msg Message) {
	var envelope struct {
		Type core.BlockType  `json:"type"`
		Wire json.RawMessage `json:"wire"`
	}
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		log.Printf("[gossip] unmarshal publish_block: %v", err)
		if n.exclusion != nil {
			n.exclusion.RecordFailure(peer.Addr)
		}
		return
	}
	var wire []byte
	if err := json.Unmarshal(envelope.Wire, &wire); err != nil {
		log.Printf("[gossip] unmarshal publish_block wire: %v", err)
		return
	}
	blk, err := core.DecodeBlock(envelope.Type, wire)
	if err != nil {
		log.Printf("[gossip] decode publish_block: %v", err)
		if n.exclusion != nil {
			n.exclusion.RecordFailure(peer.Addr)
		}
		return
	}
	if n.OnBlock != nil {
		n.OnBlock(peer, blk)
	}
}

func (n *Node) handleVote(peer *Peer, msg Message) {
	var wire []byte
	if err := json.Unmarshal(msg.Payload, &wire); err != nil {
		log.Printf("[gossip] unmarshal vote: %v", err)
		return
	}
	v, err := core.DecodeVote(wire)
	if err != nil {
		log.Printf("[gossip] decode vote: %v", err)
		if n.exclusion != nil {
			n.exclusion.RecordFailure(peer.Addr)
		}
		return
	}
	if n.OnVote != nil {
		n.OnVote(peer, v)
	}
}
