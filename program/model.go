package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	plot "github.com/chriskim06/drawille-go"
	"github.com/keilerkonzept/topk/heap"

	"github.com/keilerkonzept/serialplot/internal/pipeline"
	"github.com/keilerkonzept/serialplot/internal/series"
	"github.com/keilerkonzept/serialplot/internal/telemetry"
)

var (
	selectedColor = styles.AdaptiveColor{Light: "0", Dark: "9"}
	borderColor   = styles.AdaptiveColor{Light: "#555", Dark: "#555"}
	selectedFg    = styles.NewStyle().Foreground(selectedColor)
	borderFg      = styles.NewStyle().Foreground(borderColor)
	errStyle      = styles.NewStyle().Foreground(styles.AdaptiveColor{Light: "1", Dark: "9"})
	plotStyle     = styles.NewStyle().
			BorderStyle(styles.NormalBorder()).
			Foreground(borderColor).
			BorderForeground(borderColor)
)

// Plot series order: floor and ceiling pin the canvas to the display
// range, the signal is drawn last so it stays on top.
const (
	plotFloor = iota
	plotCeiling
	plotSignal
	plotSeriesCount
)

type model struct {
	cfg Config

	width, height  int
	leftPaneWidth  int
	rightPaneWidth int

	track  bool
	err    error
	status string
	done   bool

	paused    bool
	pauseMu   sync.Mutex
	pauseCond *sync.Cond

	list         list.Model
	listStyle    styles.Style
	listDelegate *list.DefaultDelegate
	help         help.Model
	plot         *plot.Canvas
	plotData     [][]float64

	// raw input pane, shown in place of the plot when showRaw is set
	raw     *rawTail
	rawView viewport.Model
	showRaw bool

	input io.Reader

	// sessionMu serializes the input goroutine's Deliver calls with
	// snapshot reads and resets from the UI goroutine.
	sessionMu sync.Mutex
	session   *pipeline.Session

	readings  *readingCounter
	ranker    *readingRanker
	metrics   *streamMetrics
	listItems []heap.Item
	rng       series.DisplayRange
	hasRange  bool
	last      float64

	mu sync.Mutex
}

func newModel(cfg Config, collector *telemetry.Collector, opts ...pipeline.Option) (*model, error) {
	const (
		defaultWidth  = 80
		defaultHeight = 20
	)

	metrics := newStreamMetrics(cfg.StatsWindow)
	metrics.setEnabled(cfg.StatsEnabled)

	var observer pipeline.Observer = metrics
	if collector != nil {
		observer = pipeline.Observers(metrics, collector)
	}
	session, err := pipeline.NewSession(cfg.pipelineConfig(), append(opts, pipeline.WithObserver(observer))...)
	if err != nil {
		return nil, err
	}

	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = styles.NewStyle().
		Border(styles.NormalBorder(), false, false, false, true).
		BorderForeground(borderColor).
		Foreground(selectedColor).
		Bold(false).
		Padding(0, 0, 0, 1)
	d.Styles.SelectedDesc = d.Styles.SelectedTitle.
		Foreground(selectedColor)
	d.ShowDescription = true

	l := list.New(make([]list.Item, 0), d, defaultWidth/2-2, defaultHeight)
	l.Styles.NoItems = l.Styles.NoItems.
		Padding(0, 2)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)

	p := plot.NewCanvas(defaultWidth, defaultHeight)
	p.NumDataPoints = cfg.RangeX
	p.ShowAxis = false
	p.LineColors = make([]plot.Color, plotSeriesCount)

	m := &model{
		cfg:          cfg,
		track:        cfg.TrackSelected,
		help:         help.New(),
		list:         l,
		listDelegate: &d,
		plot:         &p,
		plotData:     make([][]float64, plotSeriesCount),
		raw:          newRawTail(cfg.RawBytes),
		rawView:      viewport.New(defaultWidth, defaultHeight),
		showRaw:      cfg.ShowRaw,
		session:      session,
		readings:     newReadingCounter(cfg),
		ranker:       newReadingRanker(cfg.K, cfg.FullRefresh, cfg.PartialSize),
		metrics:      metrics,
	}
	m.leftPaneWidth, m.rightPaneWidth = computePaneWidths(defaultWidth, cfg.ViewSplit)
	m.pauseCond = sync.NewCond(&m.pauseMu)
	for i := range m.plotData {
		m.plotData[i] = make([]float64, cfg.RangeX)
	}
	m.plot.Fill(m.plotData)
	return m, nil
}

func (m *model) leftWidth() int {
	if m.leftPaneWidth > 0 {
		return m.leftPaneWidth
	}
	left, _ := computePaneWidths(m.width, m.cfg.ViewSplit)
	return left
}

func (m *model) rightWidth() int {
	if m.rightPaneWidth > 0 {
		return m.rightPaneWidth
	}
	_, right := computePaneWidths(m.width, m.cfg.ViewSplit)
	return right
}

type errMsg struct{ err error }

type inputDoneMsg struct{}

type snapshotMsg struct {
	path string
	err  error
}

func (m *model) readInput() tui.Cmd {
	if m.input == nil {
		return nil
	}
	return func() tui.Msg {
		err := pump(m.input, pumpOptions{
			chunkSize:  m.cfg.ChunkSize,
			maxRecords: m.cfg.MaxRecords,
			pace:       m.cfg.Pace,
			wait:       m.waitIfPaused,
		}, m.deliver)
		if err != nil {
			return errMsg{err}
		}
		return inputDoneMsg{}
	}
}

// deliver runs one chunk through the session and feeds accepted values
// to the readings sketch.
func (m *model) deliver(chunk []byte) int {
	m.raw.write(chunk)
	start := time.Now()
	m.sessionMu.Lock()
	res := m.session.Deliver(chunk)
	m.sessionMu.Unlock()
	m.metrics.observeFeed(time.Since(start))

	for _, s := range res.Accepted {
		m.readings.observe(s.Value)
	}
	return len(res.Accepted)
}

func (m *model) readingsTickCmd() tui.Cmd {
	return func() tui.Msg {
		ticker := time.NewTicker(m.cfg.TickSize)
		for t := range ticker.C {
			m.waitIfPaused()
			m.readings.tick(t)
		}
		return nil
	}
}

type ItemsTickMsg time.Time

func (m *model) doItemsTick() tui.Cmd {
	return tui.Every(time.Second/time.Duration(m.cfg.ItemsFPS), func(t time.Time) tui.Msg {
		return ItemsTickMsg(t)
	})
}

type PlotTickMsg time.Time

func (m *model) doPlotTick() tui.Cmd {
	return tui.Every(time.Second/time.Duration(m.cfg.PlotFPS), func(t time.Time) tui.Msg {
		return PlotTickMsg(t)
	})
}

func (m *model) Init() tui.Cmd {
	return tui.Batch(m.readInput(), m.readingsTickCmd(), m.doPlotTick(), m.doItemsTick())
}

func (m *model) Update(msg tui.Msg) (tui.Model, tui.Cmd) {
	switch msg := msg.(type) {
	case errMsg:
		m.mu.Lock()
		m.err = msg.err
		m.mu.Unlock()
		return m, nil
	case inputDoneMsg:
		m.mu.Lock()
		m.done = true
		m.mu.Unlock()
		return m, nil
	case snapshotMsg:
		if msg.err != nil {
			m.setStatus("snapshot failed: " + msg.err.Error())
		} else {
			m.setStatus("snapshot written to " + msg.path)
		}
		return m, nil
	case ItemsTickMsg:
		if m.isPaused() {
			return m, m.doItemsTick()
		}
		m.updateTopK()
		cmdList := m.updateList(msg)
		return m, tui.Batch(cmdList, m.doItemsTick())
	case PlotTickMsg:
		m.updatePlot()
		if m.showRaw {
			m.updateRaw()
		}
		return m, m.doPlotTick()
	case tui.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.leftPaneWidth, m.rightPaneWidth = computePaneWidths(m.width, m.cfg.ViewSplit)
		statsLines := 0
		if m.cfg.StatsEnabled {
			// title + 7 stat lines
			statsLines = 8
		}
		statusLines, helpLines := 1, 1
		available := max(1, m.height-statsLines-statusLines-helpLines)

		leftW := max(1, m.leftWidth())
		rightW := max(1, m.rightWidth())

		m.list.SetSize(leftW, available)
		m.listStyle = styles.NewStyle().Width(leftW).Height(available)

		// Right side is: plot canvas + 1 label line, wrapped in a border (adds 2 lines).
		m.resizePlot(max(1, rightW-2), max(1, available-3))
		return m, nil
	case tui.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tui.Quit
		case key.Matches(msg, keys.Up):
			m.list.CursorUp()
			return m, nil
		case key.Matches(msg, keys.Down):
			m.list.CursorDown()
			return m, nil
		case key.Matches(msg, keys.Pause):
			m.togglePause()
			return m, nil
		case key.Matches(msg, keys.Track):
			m.toggleTracking()
			return m, nil
		case key.Matches(msg, keys.Reset):
			m.resetSession()
			return m, nil
		case key.Matches(msg, keys.Snapshot):
			return m, m.snapshotCmd()
		case key.Matches(msg, keys.Raw):
			m.showRaw = !m.showRaw
			if m.showRaw {
				m.updateRaw()
			}
			return m, nil
		}
	}
	var cmd tui.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *model) setStatus(s string) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *model) toggleTracking() {
	m.mu.Lock()
	m.track = !m.track
	m.mu.Unlock()
}

func (m *model) togglePause() {
	m.pauseMu.Lock()
	m.paused = !m.paused
	m.pauseMu.Unlock()
	m.pauseCond.Broadcast()
}

func (m *model) isPaused() bool {
	m.pauseMu.Lock()
	defer m.pauseMu.Unlock()
	return m.paused
}

func (m *model) waitIfPaused() {
	m.pauseMu.Lock()
	for m.paused {
		m.pauseCond.Wait()
	}
	m.pauseMu.Unlock()
}

// resetSession clears the window, the range and the readings
// leaderboard. Bytes already read stay consumed.
func (m *model) resetSession() {
	m.sessionMu.Lock()
	m.session.Reset()
	m.sessionMu.Unlock()
	m.readings.reset()
	m.ranker.reset()
	m.raw.reset()

	m.mu.Lock()
	m.listItems = nil
	m.hasRange = false
	m.status = "session reset"
	m.mu.Unlock()
}

func (m *model) snapshotCmd() tui.Cmd {
	m.sessionMu.Lock()
	view := m.session.Snapshot()
	m.sessionMu.Unlock()
	dir := m.cfg.SnapshotDir
	return func() tui.Msg {
		path, err := writeSnapshot(dir, view, time.Now())
		return snapshotMsg{path: path, err: err}
	}
}

func (m *model) updateTopK() {
	items, _ := m.ranker.refresh(time.Now(), m.readings.sorted, m.readings.updateCounts)
	m.mu.Lock()
	m.listItems = items
	m.mu.Unlock()
}

func (m *model) resizePlot(w int, h int) {
	p := plot.NewCanvas(w, h)
	p.NumDataPoints = m.plot.NumDataPoints
	p.ShowAxis = m.plot.ShowAxis
	p.LineColors = m.plot.LineColors
	m.plot = &p
	m.rawView.Width, m.rawView.Height = w, h
}

// updateRaw shows the latest input bytes, scrolled to the end.
func (m *model) updateRaw() {
	m.rawView.SetContent(m.raw.text())
	m.rawView.GotoBottom()
}

func (m *model) updateList(msg tui.Msg) tui.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]list.Item, len(m.listItems))
	order := make(map[string]int)

	m.listDelegate.Styles.SelectedTitle = m.listDelegate.Styles.SelectedTitle.Bold(m.track)
	m.listDelegate.Styles.SelectedDesc = m.listDelegate.Styles.SelectedDesc.Bold(m.track)
	m.list.SetDelegate(m.listDelegate)

	numDecimals := 1 + int(math.Ceil(math.Log10(float64(m.cfg.K+1))))
	padToRankWidth := strings.Repeat(" ", numDecimals+1)
	rankFormat := "#%-" + fmt.Sprint(numDecimals) + "d"
	for i, item := range m.listItems {
		items[i] = listItem{
			DescriptionPrefix: padToRankWidth,
			TitlePrefix:       fmt.Sprintf(rankFormat, i+1),
			Item:              item,
		}
		order[item.Item] = i
	}
	selected := m.list.SelectedItem()
	set := m.list.SetItems(items)
	var cmd tui.Cmd
	if m.track && selected != nil {
		if i, ok := order[selected.(listItem).Item.Item]; ok {
			m.list.Select(i)
		}
	}
	m.list, cmd = m.list.Update(msg)
	return tui.Batch(set, cmd)
}

// updatePlot copies the window into the canvas, shifted so the display
// range maps onto the canvas height.
func (m *model) updatePlot() {
	var highlight, dim plot.Color
	if styles.DefaultRenderer().HasDarkBackground() {
		highlight, dim = plot.Red, plot.DimGray
	} else {
		highlight, dim = plot.Black, plot.LightGray
	}

	signal := m.plotData[plotSignal]
	m.sessionMu.Lock()
	rng, ok := m.session.Range()
	m.session.Values(signal, rng.YMin)
	m.sessionMu.Unlock()

	span := plotSpan(rng)
	for i := range signal {
		signal[i] -= rng.YMin
		m.plotData[plotFloor][i] = 0
		m.plotData[plotCeiling][i] = span
	}

	m.mu.Lock()
	m.rng, m.hasRange = rng, ok
	if ok {
		m.last = signal[len(signal)-1] + rng.YMin
	}
	m.plot.LineColors[plotFloor] = dim
	m.plot.LineColors[plotCeiling] = dim
	m.plot.LineColors[plotSignal] = highlight
	m.mu.Unlock()
	m.plot.Fill(m.plotData)
}

func plotSpan(r series.DisplayRange) float64 {
	if span := r.YMax - r.YMin; span > 0 {
		return span
	}
	return 1
}

func (m *model) View() string {
	left := m.listStyle.Render(m.list.View())
	canvas := m.plot.String()
	if m.showRaw {
		canvas = m.rawView.View()
	}
	if canvas == "" {
		sb := emptyPlot(m)
		canvas = sb.String()
	}

	m.mu.Lock()
	rng, hasRange, last := m.rng, m.hasRange, m.last
	err, status, done, track := m.err, m.status, m.done, m.track
	listItems := m.listItems
	m.mu.Unlock()

	right := plotStyle.Render(styles.JoinVertical(styles.Top, canvas, m.rangeLabels(rng, hasRange, last)))
	view := styles.JoinHorizontal(styles.Top, left, right)

	if err != nil {
		return styles.JoinVertical(styles.Left, view, errStyle.Render("ERROR: "+err.Error()), m.help.View(keys))
	}

	blocks := []string{view}
	if m.cfg.StatsEnabled {
		blocks = append(blocks, errStyle.Render(m.statsText(listItems, track, done)))
	}
	blocks = append(blocks, borderFg.Render(status), m.help.View(keys))
	return styles.JoinVertical(styles.Left, blocks...)
}

// rangeLabels renders "x a..b", the y range and the latest value across
// the pane width, dropping parts when the pane is too narrow.
func (m *model) rangeLabels(rng series.DisplayRange, ok bool, last float64) string {
	if !ok {
		return borderFg.Render("waiting for data")
	}
	w := max(0, m.rightWidth()-2)
	xLabel := fmt.Sprintf("x %d..%d", rng.XMin, rng.XMax)
	yLabel := fmt.Sprintf("y %s..%s", formatValue(rng.YMin), formatValue(rng.YMax))
	lastLabel := "last " + formatValue(last)

	minWidth := len(xLabel) + len(yLabel) + len(lastLabel) + 4
	if w < minWidth {
		return selectedFg.Render(lastLabel)
	}
	spaceTotal := w - (len(xLabel) + len(yLabel) + len(lastLabel))
	leftGap := spaceTotal / 2
	rightGap := spaceTotal - leftGap
	return xLabel +
		strings.Repeat(" ", leftGap) +
		borderFg.Render(yLabel) +
		strings.Repeat(" ", rightGap) +
		selectedFg.Render(lastLabel)
}

func (m *model) statsText(listItems []heap.Item, track, done bool) string {
	snap := m.metrics.snapshot()
	title := "STREAM (RUNNING)"
	switch {
	case done:
		title = "STREAM (ENDED)"
	case m.isPaused():
		title = "STREAM (PAUSED)"
	}

	m.sessionMu.Lock()
	buffered := m.session.Buffered()
	m.sessionMu.Unlock()

	top := "-"
	if len(listItems) > 0 {
		top = fmt.Sprintf("%s (%d)", listItems[0].Item, listItems[0].Count)
	}
	tracked := "off"
	if track {
		tracked = "-"
		if li, ok := m.list.SelectedItem().(listItem); ok {
			tracked = fmt.Sprintf("%s (%d)", li.Item.Item, li.Count)
		}
	}
	lastReject := snap.lastReject
	if lastReject == "" {
		lastReject = "-"
	}

	return strings.Join([]string{
		title,
		fmt.Sprintf("samples: %d  rejected: %d  bytes: %d", snap.records, snap.rejected, snap.bytes),
		fmt.Sprintf("ingest rate: %d samples/s", snap.avgRps),
		fmt.Sprintf("feed latency avg/max: %s / %s", formatMetricDuration(snap.feed.avg), formatMetricDuration(snap.feed.max)),
		fmt.Sprintf("buffered: %d bytes  framing: %s", buffered, m.cfg.Framing),
		fmt.Sprintf("top reading: %s", top),
		fmt.Sprintf("track: %s", tracked),
		fmt.Sprintf("last rejected: %s", lastReject),
	}, "\n")
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func emptyPlot(m *model) strings.Builder {
	var sb strings.Builder
	if m.width < 2 || m.height < 4 {
		return sb
	}
	w, h := m.list.Width(), m.list.Height()
	sb.Grow(w * h)
	spaces := strings.Repeat(" ", w)
	for range h - 2 {
		sb.WriteString(spaces)
		sb.WriteRune('\n')
	}
	return sb
}

func formatMetricDuration(d time.Duration) string {
	if d <= 0 {
		return "0.000ms"
	}
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}

func computePaneWidths(totalWidth int, splitPercent int) (left, right int) {
	if totalWidth <= 1 {
		return 1, 1
	}
	left = min(max(1, totalWidth*splitPercent/100), totalWidth-1)
	right = totalWidth - left

	// Keep panes readable when the terminal is wide enough.
	const minPane = 18
	if totalWidth >= minPane*2 {
		if left < minPane {
			left = minPane
			right = totalWidth - left
		}
		if right < minPane {
			right = minPane
			left = totalWidth - right
		}
	}
	return max(1, left), max(1, right)
}

type listItem struct {
	DescriptionPrefix string
	TitlePrefix       string
	heap.Item
}

func (i listItem) Title() string       { return fmt.Sprintf("%s %s", i.TitlePrefix, i.Item.Item) }
func (i listItem) Description() string { return fmt.Sprintf("%s %d×", i.DescriptionPrefix, i.Count) }
func (i listItem) FilterValue() string { return i.Item.Item }

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Pause, k.Reset, k.Snapshot, k.Raw, k.Track}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit, k.Pause, k.Reset},
		{k.Up, k.Down, k.Track, k.Snapshot, k.Raw},
	}
}

type keyMap struct {
	Track    key.Binding
	Pause    key.Binding
	Reset    key.Binding
	Snapshot key.Binding
	Raw      key.Binding
	Up       key.Binding
	Down     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Track: key.NewBinding(
		key.WithKeys("t", " "),
		key.WithHelp("t/space", "track"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause"),
	),
	Reset: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reset"),
	),
	Snapshot: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "png"),
	),
	Raw: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "raw/plot"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q/ctrl+c", "quit"),
	),
}
