package tam

import (
	"context"
	"encoding/binary"

	"github.com/jihwankim/shufflebench/pkg/metrics"
	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/substrate"
	"github.com/jihwankim/shufflebench/pkg/topology"
)

// Variant selects how Phase A gathers local payloads to the node's proxy.
// Phase C, the scatter back out, is message-based in both variants.
// Phase B, the inter-proxy exchange, is always message-based: there is no
// non-contiguous shared-memory
// datatype in this substrate to describe a multi-sender, multi-destination
// gather across a node boundary the way an MPI derived datatype would.
type Variant string

const (
	MessageBased Variant = "message"
	SharedWindow Variant = "window"
)

// Result mirrors engine.Result with the final per-rank state attached, so
// a caller can assert a round actually reached LocalScatterDone rather
// than having aborted partway through.
type Result struct {
	RoundID uint32
	Times   metrics.RoundTimes
	State   State
}

// row is one local sender's contribution as gathered by its proxy during
// Phase A: the sender's full per-destination send_len vector and a Buffer
// over the matching payload bytes.
type row struct {
	sender int
	lens   []int
	buf    *plan.Buffer
}

// bufferFrom wraps data with an offset table derived from lens without
// copying data, unlike plan.NewBuffer which allocates its own backing
// array.
func bufferFrom(data []byte, lens []int) *plan.Buffer {
	offset := make([]int, len(lens)+1)
	for j, l := range lens {
		offset[j+1] = offset[j] + l
	}
	return &plan.Buffer{Data: data, Offset: offset}
}

func encodeLens(lens []int) []byte {
	buf := make([]byte, 4*len(lens))
	for i, l := range lens {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(l))
	}
	return buf
}

func decodeLens(buf []byte) []int {
	lens := make([]int, len(buf)/4)
	for i := range lens {
		lens[i] = int(binary.BigEndian.Uint32(buf[4*i:]))
	}
	return lens
}

// Phase-A, Phase-B and Phase-C tags each reserve a distinct high bit on
// top of the ordinary pair tag so none of the three phases can ever match
// a request posted by another, regardless of how sender/receiver ranks or
// node indices happen to collide numerically.
const (
	phaseABit  = 1 << 27
	phaseBBit  = 1 << 28
	phaseCBit  = 1 << 29
	payloadBit = 1 << 26
)

func phaseATag(sender, proxy int, round uint32, payload bool) int {
	t := plan.Tag(sender, proxy, round) ^ phaseABit
	if payload {
		t ^= payloadBit
	}
	return t
}

func phaseBTag(fromNode, toNode int, round uint32, payload bool) int {
	t := plan.Tag(fromNode, toNode, round) ^ phaseBBit
	if payload {
		t ^= payloadBit
	}
	return t
}

func phaseCTag(proxy, dest int, round uint32) int {
	return plan.Tag(proxy, dest, round) ^ phaseCBit
}

// proxiesByNode resolves, per node, the lowest-ranked member of local
// residing on that node: spec §4.4.7's proxy is the node's lowest-ranked
// *local aggregator*, not merely its lowest-ranked member by raw
// topology. The Local-aggregator Binder (pkg/binder.Bind) guarantees
// every node holds at least one local aggregator, so a node with none
// here means local was not actually produced by the binder.
func proxiesByNode(topo *topology.Topology, local []int) ([]int, error) {
	proxies := make([]int, topo.NumNodes())
	for i := range proxies {
		proxies[i] = -1
	}
	for _, r := range local { // local is sorted ascending (pkg/binder.Bind)
		node := topo.NodeOfRank[r]
		if proxies[node] == -1 {
			proxies[node] = r
		}
	}
	for node, p := range proxies {
		if p == -1 {
			return nil, shuffleerr.InvalidConfigf("tam: node %d has no local aggregator in bind output", node)
		}
	}
	return proxies, nil
}

// Round executes one Two-phase Aggregation Mover shuffle round (spec
// §4.4.7): Phase A gathers every node's local payloads onto that node's
// proxy, Phase B exchanges aggregated blocks directly between proxies,
// and Phase C scatters each proxy's inbound data back out to its node's
// final destinations. pl.Local must be the Local-aggregator Binder's
// output (pkg/binder.Result.Local): the proxy for every node is derived
// from it, not from raw topology, so a binder mode like Cover that
// excludes a node's lowest-ranked rank from local aggregator status
// never has that excluded rank act as proxy.
func Round(ctx context.Context, comm substrate.Comm, topo *topology.Topology, pl *plan.Plan, variant Variant) (*Result, error) {
	t := &tracker{state: Idle}
	sw := metrics.Start()

	// The per-rank send_len/recv_len rows are already known locally; the
	// "size exchange" spec §4.4.7 calls for is folded into Phase A and
	// Phase B's length headers rather than issued as its own round-trip.
	t.to(SizePosted)
	t.to(SizeDone)

	proxies, err := proxiesByNode(topo, pl.Local)
	if err != nil {
		t.abort()
		return nil, err
	}
	node := topo.NodeOfRank[pl.Rank]
	proxy := proxies[node]
	isProxy := pl.Rank == proxy

	t.to(LocalGatherPosted)
	var rows []row
	switch variant {
	case SharedWindow:
		rows, err = gatherWindow(ctx, comm, topo, pl, proxy, isProxy)
	default:
		rows, err = gatherMessage(ctx, comm, topo, pl, proxy, isProxy)
	}
	if err != nil {
		t.abort()
		return nil, err
	}
	t.to(LocalGatherDone)

	var inbound map[int][]row
	if isProxy {
		t.to(ProxyExchangePosted)
		inbound, err = exchangeProxies(ctx, comm, topo, pl, rows, node, proxies)
		if err != nil {
			t.abort()
			return nil, err
		}
		t.to(ProxyExchangeDone)
	}

	t.to(LocalScatterPosted)
	if err := scatter(ctx, comm, topo, pl, proxy, isProxy, rows, inbound); err != nil {
		t.abort()
		return nil, err
	}
	t.to(LocalScatterDone)

	elapsed := sw.Elapsed()
	return &Result{RoundID: pl.RoundID, Times: metrics.RoundTimes{Total: elapsed}, State: t.state}, nil
}

// gatherMessage implements Phase A's message-based path: every non-proxy
// local rank ships its send_len vector and its concatenated payload to
// the proxy as two sequential messages (header, then the exact number of
// payload bytes the header describes).
func gatherMessage(ctx context.Context, comm substrate.Comm, topo *topology.Topology, pl *plan.Plan, proxy int, isProxy bool) ([]row, error) {
	n := pl.World

	if !isProxy {
		rs := substrate.NewRequestSet(comm)
		hh, err := comm.ISend(ctx, encodeLens(pl.Sizes.SendLen), proxy, phaseATag(pl.Rank, proxy, pl.RoundID, false))
		if err != nil {
			return nil, shuffleerr.SubstrateError("tam phase a header send failed", err)
		}
		rs.Add(hh)
		if len(pl.SendBuf.Data) > 0 {
			dh, err := comm.ISend(ctx, pl.SendBuf.Data, proxy, phaseATag(pl.Rank, proxy, pl.RoundID, true))
			if err != nil {
				return nil, shuffleerr.SubstrateError("tam phase a payload send failed", err)
			}
			rs.Add(dh)
		}
		return nil, rs.WaitAll(ctx)
	}

	local := topo.RanksOnNode[topo.NodeOfRank[pl.Rank]]
	rows := make([]row, len(local))
	for i, r := range local {
		if r == pl.Rank {
			rows[i] = row{sender: r, lens: pl.Sizes.SendLen, buf: pl.SendBuf}
			continue
		}
		headerBuf := make([]byte, 4*n)
		hh, err := comm.IRecv(ctx, headerBuf, r, phaseATag(r, proxy, pl.RoundID, false))
		if err != nil {
			return nil, shuffleerr.SubstrateError("tam phase a header recv failed", err)
		}
		if err := comm.WaitAll(ctx, []substrate.Handle{hh}); err != nil {
			return nil, shuffleerr.SubstrateError("tam phase a header recv failed", err)
		}
		lens := decodeLens(headerBuf)
		total := 0
		for _, l := range lens {
			total += l
		}
		payload := make([]byte, total)
		if total > 0 {
			dh, err := comm.IRecv(ctx, payload, r, phaseATag(r, proxy, pl.RoundID, true))
			if err != nil {
				return nil, shuffleerr.SubstrateError("tam phase a payload recv failed", err)
			}
			if err := comm.WaitAll(ctx, []substrate.Handle{dh}); err != nil {
				return nil, shuffleerr.SubstrateError("tam phase a payload recv failed", err)
			}
		}
		rows[i] = row{sender: r, lens: lens, buf: bufferFrom(payload, lens)}
	}
	return rows, nil
}

// gatherWindow implements Phase A's shared-window path: every rank on the
// node splits into a node-local communicator, writes its own header and
// payload into its window segment, fences once, and the proxy reads every
// segment back out. A real shared-memory window would let the proxy read
// other ranks' segments directly without the split; the in-process
// substrate needs the split to get a node-scoped rank numbering the
// window can index by.
func gatherWindow(ctx context.Context, comm substrate.Comm, topo *topology.Topology, pl *plan.Plan, proxy int, isProxy bool) ([]row, error) {
	node := topo.NodeOfRank[pl.Rank]
	local := topo.RanksOnNode[node]

	localComm, err := comm.Split(ctx, node, 0)
	if err != nil {
		return nil, shuffleerr.SubstrateError("tam phase a split failed", err)
	}
	wc, ok := localComm.(substrate.WindowComm)
	if !ok {
		return nil, shuffleerr.SubstrateError("tam phase a: node-local communicator does not support windows", nil)
	}

	header := encodeLens(pl.Sizes.SendLen)
	own := append(append([]byte(nil), header...), pl.SendBuf.Data...)
	win, err := wc.AllocWindow(ctx, len(own))
	if err != nil {
		return nil, shuffleerr.SubstrateError("tam phase a window alloc failed", err)
	}
	if err := win.Write(own); err != nil {
		return nil, shuffleerr.SubstrateError("tam phase a window write failed", err)
	}
	if err := win.Fence(ctx); err != nil {
		return nil, shuffleerr.SubstrateError("tam phase a window fence failed", err)
	}
	if !isProxy {
		return nil, nil
	}

	n := pl.World
	rows := make([]row, len(local))
	for i, r := range local {
		seg, err := win.Read(i)
		if err != nil {
			return nil, shuffleerr.SubstrateError("tam phase a window read failed", err)
		}
		lens := decodeLens(seg[:4*n])
		payload := seg[4*n:]
		rows[i] = row{sender: r, lens: lens, buf: bufferFrom(payload, lens)}
	}
	return rows, nil
}

// exchangeProxies implements Phase B, run only by proxies: for every peer
// node it ships a header describing, for each of its own local senders
// and each destination on the peer node, how many bytes follow, then the
// payload itself (skipped entirely when the computed total is zero, so no
// zero-length Phase-B send is ever posted). It returns, per source node,
// the rows reconstructed from what the peer's proxy sent.
func exchangeProxies(ctx context.Context, comm substrate.Comm, topo *topology.Topology, pl *plan.Plan, rows []row, node int, proxies []int) (map[int][]row, error) {
	myNode := node
	var peers []int
	for q := 0; q < topo.NumNodes(); q++ {
		if q != myNode {
			peers = append(peers, q)
		}
	}

	type outgoing struct {
		header  []byte
		payload []byte
	}
	out := make(map[int]outgoing, len(peers))
	for _, q := range peers {
		dests := topo.RanksOnNode[q]
		header := make([]int, len(rows)*len(dests))
		var payload []byte
		idx := 0
		for _, r := range rows {
			for _, d := range dests {
				l := r.lens[d]
				header[idx] = l
				idx++
				if l > 0 {
					payload = append(payload, r.buf.Segment(d)...)
				}
			}
		}
		out[q] = outgoing{header: encodeLens(header), payload: payload}
	}

	// Pass 1: exchange headers, which have a size both sides can compute
	// from topology alone: len(senders on q) times len(destinations on
	// myNode).
	headerRS := substrate.NewRequestSet(comm)
	headerBufs := make(map[int][]byte, len(peers))
	for _, q := range peers {
		headerBufs[q] = make([]byte, 4*len(topo.RanksOnNode[q])*len(topo.RanksOnNode[myNode]))
		h, err := comm.IRecv(ctx, headerBufs[q], proxies[q], phaseBTag(q, myNode, pl.RoundID, false))
		if err != nil {
			return nil, shuffleerr.SubstrateError("tam phase b header recv failed", err)
		}
		headerRS.Add(h)
	}
	for _, q := range peers {
		h, err := comm.ISend(ctx, out[q].header, proxies[q], phaseBTag(myNode, q, pl.RoundID, false))
		if err != nil {
			return nil, shuffleerr.SubstrateError("tam phase b header send failed", err)
		}
		headerRS.Add(h)
	}
	if err := headerRS.WaitAll(ctx); err != nil {
		return nil, err
	}

	// Pass 2: exchange payloads sized by what pass 1's headers described.
	type inboundShape struct {
		senders []int
		dests   []int
		lens    []int
	}
	shapes := make(map[int]inboundShape, len(peers))
	totals := make(map[int]int, len(peers))
	for _, q := range peers {
		senders := topo.RanksOnNode[q]
		dests := topo.RanksOnNode[myNode]
		lens := decodeLens(headerBufs[q])
		total := 0
		for _, l := range lens {
			total += l
		}
		shapes[q] = inboundShape{senders: senders, dests: dests, lens: lens}
		totals[q] = total
	}

	payloadRS := substrate.NewRequestSet(comm)
	inPayload := make(map[int][]byte, len(peers))
	for _, q := range peers {
		if totals[q] == 0 {
			continue
		}
		inPayload[q] = make([]byte, totals[q])
		h, err := comm.IRecv(ctx, inPayload[q], proxies[q], phaseBTag(q, myNode, pl.RoundID, true))
		if err != nil {
			return nil, shuffleerr.SubstrateError("tam phase b payload recv failed", err)
		}
		payloadRS.Add(h)
	}
	for _, q := range peers {
		if len(out[q].payload) == 0 {
			continue
		}
		h, err := comm.ISend(ctx, out[q].payload, proxies[q], phaseBTag(myNode, q, pl.RoundID, true))
		if err != nil {
			return nil, shuffleerr.SubstrateError("tam phase b payload send failed", err)
		}
		payloadRS.Add(h)
	}
	if err := payloadRS.WaitAll(ctx); err != nil {
		return nil, err
	}

	inbound := make(map[int][]row, len(peers))
	for _, q := range peers {
		shape := shapes[q]
		data := inPayload[q]
		offset := 0
		qRows := make([]row, len(shape.senders))
		for i, s := range shape.senders {
			lens := make([]int, pl.World)
			for j, d := range shape.dests {
				lens[d] = shape.lens[i*len(shape.dests)+j]
			}
			total := 0
			for _, d := range shape.dests {
				total += lens[d]
			}
			buf := data[offset : offset+total]
			offset += total
			qRows[i] = row{sender: s, lens: lens, buf: bufferFrom(buf, lens)}
		}
		inbound[q] = qRows
	}
	return inbound, nil
}

// scatter implements Phase C, run only by proxies: for every local
// destination it concatenates, in ascending global sender-rank order,
// whatever bytes that destination is owed (drawn from Phase A's local
// rows for local senders and Phase B's inbound rows for remote senders)
// and ships the whole thing as a single message. The destination posts
// one receive directly into its own RecvBuf.Data, which is already laid
// out in ascending sender order, so no further unpacking is needed on
// either side.
func scatter(ctx context.Context, comm substrate.Comm, topo *topology.Topology, pl *plan.Plan, proxy int, isProxy bool, rows []row, inbound map[int][]row) error {
	if !isProxy {
		if len(pl.RecvBuf.Data) == 0 {
			return nil
		}
		h, err := comm.IRecv(ctx, pl.RecvBuf.Data, proxy, phaseCTag(proxy, pl.Rank, pl.RoundID))
		if err != nil {
			return shuffleerr.SubstrateError("tam phase c recv failed", err)
		}
		return comm.WaitAll(ctx, []substrate.Handle{h})
	}

	// bySender indexes every row this proxy holds data for, local and
	// remote, by the original sending rank.
	bySender := make(map[int]row, pl.World)
	for _, r := range rows {
		bySender[r.sender] = r
	}
	for _, qRows := range inbound {
		for _, r := range qRows {
			bySender[r.sender] = r
		}
	}

	rs := substrate.NewRequestSet(comm)
	node := topo.NodeOfRank[pl.Rank]
	for _, d := range topo.RanksOnNode[node] {
		var buf []byte
		for s := 0; s < pl.World; s++ {
			r, ok := bySender[s]
			if !ok {
				continue
			}
			if seg := r.buf.Segment(d); len(seg) > 0 {
				buf = append(buf, seg...)
			}
		}
		if len(buf) == 0 {
			continue
		}
		if d == pl.Rank {
			copy(pl.RecvBuf.Data, buf)
			continue
		}
		h, err := comm.ISend(ctx, buf, d, phaseCTag(proxy, d, pl.RoundID))
		if err != nil {
			return shuffleerr.SubstrateError("tam phase c send failed", err)
		}
		rs.Add(h)
	}
	return rs.WaitAll(ctx)
}
