package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"gpumon/internal/monitor"
	"gpumon/internal/slurm"
	"gpumon/internal/uifmt"
)

type Options struct {
	Source      string
	NoColor     bool
	Refresh     time.Duration
	MaxDuration time.Duration
	Updates     <-chan monitor.Update
	OnRefresh   func()
}

type page int

const (
	pageOverview page = iota
	pageNodes
	pageQueue
	pageCount
)

var pageNames = [...]string{"overview", "nodes", "queue"}

type Model struct {
	source      string
	noColor     bool
	refresh     time.Duration
	maxDuration time.Duration
	updates     <-chan monitor.Update
	onRefresh   func()

	width  int
	height int

	started time.Time
	now     time.Time

	page        page
	state       monitor.State
	lastError   string
	lastSuccess time.Time
	failures    int
	pulseIndex  int
	snapshot    *slurm.Snapshot

	styles styles
}

type styles struct {
	title      lipgloss.Style
	dim        lipgloss.Style
	panel      lipgloss.Style
	tableHdr   lipgloss.Style
	label      lipgloss.Style
	value      lipgloss.Style
	ok         lipgloss.Style
	warn       lipgloss.Style
	bad        lipgloss.Style
	chip       lipgloss.Style
	chipOK     lipgloss.Style
	chipWarn   lipgloss.Style
	chipBad    lipgloss.Style
	errorLabel lipgloss.Style
	accent     lipgloss.Style
}

type updateMsg struct {
	update monitor.Update
}

type tickMsg struct {
	now time.Time
}

type channelClosedMsg struct{}

var pulseFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	frameRightGutter = 1
	viewportClipText = "... output clipped to terminal height ..."
	heavyUserLimit   = 5
	queueUserLimit   = 10
)

func NewModel(opts Options) Model {
	return Model{
		source:      opts.Source,
		noColor:     opts.NoColor,
		refresh:     opts.Refresh,
		maxDuration: opts.MaxDuration,
		updates:     opts.Updates,
		onRefresh:   opts.OnRefresh,
		started:     time.Now(),
		now:         time.Now(),
		styles:      defaultStyles(opts.NoColor),
	}
}

func defaultStyles(noColor bool) styles {
	basePanel := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if noColor {
		return styles{
			title:      lipgloss.NewStyle().Bold(true),
			dim:        lipgloss.NewStyle(),
			panel:      basePanel,
			tableHdr:   lipgloss.NewStyle().Bold(true),
			label:      lipgloss.NewStyle().Bold(true),
			value:      lipgloss.NewStyle().Bold(true),
			ok:         lipgloss.NewStyle().Bold(true),
			warn:       lipgloss.NewStyle().Bold(true),
			bad:        lipgloss.NewStyle().Bold(true),
			chip:       lipgloss.NewStyle().Bold(true),
			chipOK:     lipgloss.NewStyle().Bold(true),
			chipWarn:   lipgloss.NewStyle().Bold(true),
			chipBad:    lipgloss.NewStyle().Bold(true),
			errorLabel: lipgloss.NewStyle().Bold(true),
			accent:     lipgloss.NewStyle().Bold(true),
		}
	}

	return styles{
		title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("24")).Padding(0, 1),
		dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		panel:      basePanel.BorderForeground(lipgloss.Color("61")),
		tableHdr:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("60")).Padding(0, 1),
		label:      lipgloss.NewStyle().Foreground(lipgloss.Color("109")),
		value:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		ok:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		warn:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bad:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		chip:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("238")).Padding(0, 1),
		chipOK:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("28")).Padding(0, 1),
		chipWarn:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("232")).Background(lipgloss.Color("220")).Padding(0, 1),
		chipBad:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("160")).Padding(0, 1),
		errorLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		accent:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(ch <-chan monitor.Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return updateMsg{update: update}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(1*time.Second, func(t time.Time) tea.Msg {
		return tickMsg{now: t}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if m.onRefresh != nil {
				m.onRefresh()
			}
		case "1":
			m.page = pageOverview
		case "2":
			m.page = pageNodes
		case "3":
			m.page = pageQueue
		case "tab":
			m.page = (m.page + 1) % pageCount
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case updateMsg:
		m.state = msg.update.State
		m.lastError = msg.update.LastError
		m.lastSuccess = msg.update.LastSuccess
		m.failures = msg.update.Failures
		if msg.update.Snapshot != nil {
			snap := *msg.update.Snapshot
			m.snapshot = &snap
		}
		return m, waitForUpdate(m.updates)
	case tickMsg:
		m.now = msg.now
		if len(pulseFrames) > 0 {
			m.pulseIndex = (m.pulseIndex + 1) % len(pulseFrames)
		}
		if m.maxDuration > 0 && m.now.Sub(m.started) >= m.maxDuration {
			return m, tea.Quit
		}
		return m, tickCmd()
	case channelClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	viewWidth := stabilizedFrameWidth(m.width)
	if viewWidth <= 0 || m.height <= 0 {
		return "initializing..."
	}
	m.width = viewWidth

	now := m.now
	if now.IsZero() {
		now = time.Now()
	}

	header := m.renderHeader(now)
	footer := m.renderFooter()
	headerLines := lineCount(header)
	footerLines := lineCount(footer)
	separatorLines := 1
	if m.height <= headerLines+footerLines+4 {
		separatorLines = 0
	}
	bodyHeight := m.height - headerLines - footerLines - separatorLines
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	var body string
	if m.snapshot == nil {
		body = m.styles.panel.Width(max(20, m.width-6)).Render("waiting for first successful snapshot...")
		body = clipToHeight(body, bodyHeight)
	} else {
		body = m.renderMain(bodyHeight)
	}

	parts := []string{header}
	if separatorLines > 0 {
		parts = append(parts, "")
	}
	parts = append(parts, body)
	top := lipgloss.JoinVertical(lipgloss.Left, parts...)
	joined := pinFooterToBottom(top, footer, m.height)
	return clipToViewport(joined, viewWidth, m.height)
}

func (m Model) renderHeader(now time.Time) string {
	statusText, statusChip := m.renderStatusText()
	pulse := pulseFrames[m.pulseIndex%len(pulseFrames)]
	statusText = pulse + " " + statusText
	ageText := "refresh: never"
	if !m.lastSuccess.IsZero() {
		ageText = "refresh: " + humanDuration(now.Sub(m.lastSuccess)) + " ago"
	}

	left := m.styles.title.Render(" GPU MONITOR ") + "  " +
		m.styles.label.Render("source: ") + m.styles.value.Render(m.source) + "  " +
		m.styles.chip.Render("clock: "+now.Format("15:04:05")) + " " +
		m.styles.chip.Render(ageText)
	right := statusChip.Render(statusText)
	line1 := joinWithPaddingKeepRight(left, right, m.width)
	if m.lastError == "" {
		return line1
	}
	line2 := truncateRunes(m.styles.errorLabel.Render("error: "+m.lastError), m.width)
	return line1 + "\n" + line2
}

func (m Model) renderStatusText() (string, lipgloss.Style) {
	if m.snapshot == nil && strings.TrimSpace(m.lastError) == "" {
		return "loading", m.styles.chipWarn
	}

	switch m.state {
	case monitor.StateLive:
		return "live", m.styles.chipOK
	case monitor.StateStale:
		return fmt.Sprintf("stale (failures: %d)", m.failures), m.styles.chipBad
	case monitor.StateDegraded:
		return fmt.Sprintf("degraded (failures: %d)", m.failures), m.styles.chipWarn
	default:
		return "loading", m.styles.chipWarn
	}
}

func (m Model) renderFooter() string {
	parts := make([]string, 0, len(pageNames)+1)
	for i, name := range pageNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if page(i) == m.page {
			parts = append(parts, m.styles.accent.Render(label))
		} else {
			parts = append(parts, m.styles.dim.Render(label))
		}
	}
	parts = append(parts, m.styles.dim.Render("r refresh  q quit"))
	return strings.Join(parts, "   ")
}

func (m Model) renderMain(maxHeight int) string {
	switch m.page {
	case pageNodes:
		return m.renderNodesPage(maxHeight)
	case pageQueue:
		return m.renderQueuePage(maxHeight)
	default:
		return m.renderOverviewPage(maxHeight)
	}
}

func (m Model) renderOverviewPage(maxHeight int) string {
	inner := max(20, m.width-6)
	contentWidth := panelContentWidth(inner)

	usersTarget := max(8, maxHeight/3)
	availTarget := maxHeight - usersTarget
	if availTarget < 7 {
		availTarget = 7
		usersTarget = max(3, maxHeight-availTarget)
	}

	availBody := m.renderAvailability(panelContentHeight(availTarget), contentWidth)
	availPanel := m.styles.panel.Width(inner).Render(availBody)

	usersBody := m.renderHeavyUsers(panelContentHeight(usersTarget), contentWidth)
	usersPanel := m.styles.panel.Width(inner).Render(usersBody)

	body := lipgloss.JoinVertical(lipgloss.Left, availPanel, usersPanel)
	return clipToHeight(body, maxHeight)
}

func (m Model) renderNodesPage(maxHeight int) string {
	inner := max(20, m.width-6)
	body := m.renderNodeTable(panelContentHeight(maxHeight), panelContentWidth(inner))
	panel := m.styles.panel.Width(inner).Render(body)
	return clipToHeight(panel, maxHeight)
}

func (m Model) renderQueuePage(maxHeight int) string {
	inner := max(20, m.width-6)
	body := m.renderQueueTable(panelContentHeight(maxHeight), panelContentWidth(inner))
	panel := m.styles.panel.Width(inner).Render(body)
	return clipToHeight(panel, maxHeight)
}

const availRowFmt = "%-10s %6s %6s %6s %11s %9s %8s"

func (m Model) renderAvailability(contentHeight, contentWidth int) string {
	if m.snapshot == nil || contentHeight <= 0 {
		return ""
	}
	types := m.snapshot.Aggregates.GPUTypes

	alert, hasAlert := nodeStateAlert(m.snapshot)
	mandatoryLines := 2 // title + total availability line
	if hasAlert {
		mandatoryLines++
	}
	remaining := contentHeight - mandatoryLines
	showHeader := remaining > 0
	visibleRows := 0
	if showHeader {
		visibleRows = min(len(types), remaining-1)
	}
	hidden := len(types) - visibleRows

	title := "gpu availability"
	if hidden > 0 {
		title = fmt.Sprintf("gpu availability (top %d/%d, +%d hidden)", visibleRows, len(types), hidden)
	}

	lines := []string{m.sectionTitle(title)}
	if hasAlert {
		lines = append(lines, m.styles.bad.Render(alert))
	}
	if showHeader {
		lines = append(lines, fmt.Sprintf(availRowFmt, "type", "total", "used", "free", "truly free", "nodes", "used%"))
	}
	for i := 0; i < visibleRows; i++ {
		s := types[i]
		free := s.Available()
		if free < 0 {
			free = 0
		}
		lines = append(lines, fmt.Sprintf(
			availRowFmt,
			truncateRunes(s.Type, 10),
			fmt.Sprintf("%d", s.Total),
			fmt.Sprintf("%d", s.Used),
			fmt.Sprintf("%d", free),
			fmt.Sprintf("%d", s.TrueAvailable),
			uifmt.Ratio(s.HealthyNodes(), s.Nodes),
			uifmt.Percent(s.UsagePercent(), s.Total > 0),
		))
	}

	totalAvailable := m.snapshot.Aggregates.TotalTrueAvailable()
	statusStyle := m.styles.ok
	if totalAvailable == 0 {
		statusStyle = m.styles.warn
	}
	lines = append(lines, statusStyle.Render(fmt.Sprintf("total GPUs available: %d", totalAvailable)))

	lines = clipLines(lines, contentHeight)
	lines = fitLinesToWidth(lines, contentWidth)
	return strings.Join(lines, "\n")
}

// userGroup folds the per-type usage rows of one user into a single display
// row. Rows for one user are adjacent in the aggregate order, so a single
// pass suffices.
type userGroup struct {
	user  string
	gpus  int
	jobs  int
	types []string
	nodes []string
}

func groupUserUsage(rows []slurm.UserUsage) []userGroup {
	var out []userGroup
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].user != r.User {
			out = append(out, userGroup{user: r.User})
		}
		g := &out[len(out)-1]
		g.gpus += r.GPUCount
		g.jobs += r.Jobs
		g.types = append(g.types, r.GPUType)
		g.nodes = append(g.nodes, r.Nodes...)
	}
	for i := range out {
		sort.Strings(out[i].nodes)
	}
	return out
}

const userRowFmt = "%-16s %6s %5s %-14s %s"

func (m Model) renderHeavyUsers(contentHeight, contentWidth int) string {
	if m.snapshot == nil || contentHeight <= 0 {
		return ""
	}
	groups := groupUserUsage(m.snapshot.Aggregates.Users)

	remaining := contentHeight - 1
	showHeader := remaining > 0
	visibleRows := 0
	if showHeader {
		visibleRows = min(min(len(groups), heavyUserLimit), remaining-1)
	}
	if visibleRows < 0 {
		visibleRows = 0
	}
	hidden := len(groups) - visibleRows

	title := "heavy users"
	if hidden > 0 {
		title = fmt.Sprintf("heavy users (top %d/%d, +%d hidden)", visibleRows, len(groups), hidden)
	}

	lines := []string{m.sectionTitle(title)}
	if len(groups) == 0 {
		lines = append(lines, m.styles.dim.Render("(no running GPU jobs)"))
	} else if showHeader {
		lines = append(lines, fmt.Sprintf(userRowFmt, "user", "gpus", "jobs", "types", "nodes"))
		for i := 0; i < visibleRows; i++ {
			g := groups[i]
			lines = append(lines, fmt.Sprintf(
				userRowFmt,
				truncateRunes(g.user, 16),
				fmt.Sprintf("%d", g.gpus),
				fmt.Sprintf("%d", g.jobs),
				truncateRunes(strings.Join(g.types, ","), 14),
				uifmt.NodeList(g.nodes, 3),
			))
		}
	}

	lines = clipLines(lines, contentHeight)
	lines = fitLinesToWidth(lines, contentWidth)
	return strings.Join(lines, "\n")
}

const nodeRowFmt = "%-16s %-16s %-10s %9s %6s %s"

func (m Model) renderNodeTable(contentHeight, contentWidth int) string {
	if m.snapshot == nil || contentHeight <= 0 {
		return ""
	}
	nodes := m.snapshot.GPUNodes()
	totalNodes := len(nodes)

	alert, hasAlert := nodeStateAlert(m.snapshot)
	mandatoryLines := 2 // title + total
	if hasAlert {
		mandatoryLines++
	}
	remaining := contentHeight - mandatoryLines
	showHeader := remaining > 0
	visibleRows := 0
	if showHeader {
		visibleRows = min(totalNodes, remaining-1)
	}
	hiddenNodes := totalNodes - visibleRows

	title := "node status"
	if hiddenNodes > 0 {
		title = fmt.Sprintf("node status (top %d/%d, +%d hidden)", visibleRows, totalNodes, hiddenNodes)
	}

	lines := []string{m.sectionTitle(title)}
	if hasAlert {
		lines = append(lines, m.styles.bad.Render(alert))
	}
	if showHeader {
		lines = append(lines, fmt.Sprintf(nodeRowFmt, "node", "state", "type", "gpus", "free", "users"))
	}
	for i := 0; i < visibleRows; i++ {
		n := nodes[i]
		free := n.GPUTotal - n.GPUUsed
		if free < 0 {
			free = 0
		}
		line := fmt.Sprintf(
			nodeRowFmt,
			truncateRunes(n.Name, 16),
			truncateRunes(n.State, 16),
			truncateRunes(n.GPUType, 10),
			uifmt.Ratio(n.GPUUsed, n.GPUTotal),
			fmt.Sprintf("%d", free),
			strings.Join(m.snapshot.UsersOn(n.Name), ","),
		)
		state := strings.ToUpper(n.State)
		switch {
		case strings.Contains(state, "DOWN"):
			line = m.styles.bad.Render(line)
		case strings.Contains(state, "DRAIN"):
			line = m.styles.warn.Render(line)
		}
		lines = append(lines, line)
	}

	var usedTotal, gpuTotal int
	for _, s := range m.snapshot.Aggregates.GPUTypes {
		usedTotal += s.Used
		gpuTotal += s.Total
	}
	totalLine := fmt.Sprintf(
		nodeRowFmt,
		"TOTAL",
		"",
		"",
		uifmt.Ratio(usedTotal, gpuTotal),
		fmt.Sprintf("%d", m.snapshot.Aggregates.TotalTrueAvailable()),
		"",
	)
	lines = append(lines, m.styles.accent.Render(totalLine))

	lines = clipLines(lines, contentHeight)
	lines = fitLinesToWidth(lines, contentWidth)
	return strings.Join(lines, "\n")
}

const (
	queueRowFmt     = "%-10s %6s %6s %11s %6s"
	queueUserRowFmt = "%-16s %-10s %6s %6s %11s"
)

func (m Model) renderQueueTable(contentHeight, contentWidth int) string {
	if m.snapshot == nil || contentHeight <= 0 {
		return ""
	}
	agg := m.snapshot.Aggregates

	lines := []string{m.sectionTitle("queue pressure")}
	if len(agg.QueueTypes) == 0 {
		lines = append(lines, m.styles.dim.Render("(no pending GPU jobs)"))
	} else {
		lines = append(lines, fmt.Sprintf(queueRowFmt, "type", "jobs", "gpus", "gpu hours", "users"))
		var totalHours float64
		for _, s := range agg.QueueTypes {
			totalHours += s.GPUHours
			lines = append(lines, fmt.Sprintf(
				queueRowFmt,
				truncateRunes(s.GPUType, 10),
				fmt.Sprintf("%d", s.Jobs),
				fmt.Sprintf("%d", s.GPUs),
				uifmt.Hours(s.GPUHours),
				fmt.Sprintf("%d", s.Users),
			))
		}
		jobs, gpus := agg.QueueTotals()
		totalLine := fmt.Sprintf(
			queueRowFmt,
			"TOTAL",
			fmt.Sprintf("%d", jobs),
			fmt.Sprintf("%d", gpus),
			uifmt.Hours(totalHours),
			"",
		)
		lines = append(lines, m.styles.accent.Render(totalLine))
	}

	if len(agg.QueueUsers) > 0 {
		users := agg.QueueUsers
		totalUsers := len(users)
		if len(users) > queueUserLimit {
			users = users[:queueUserLimit]
		}
		hidden := totalUsers - len(users)

		title := "queue users"
		if hidden > 0 {
			title = fmt.Sprintf("queue users (top %d/%d, +%d hidden)", len(users), totalUsers, hidden)
		}
		lines = append(lines, "", m.sectionTitle(title))
		lines = append(lines, fmt.Sprintf(queueUserRowFmt, "user", "type", "jobs", "gpus", "gpu hours"))
		for _, u := range users {
			lines = append(lines, fmt.Sprintf(
				queueUserRowFmt,
				truncateRunes(u.User, 16),
				truncateRunes(u.GPUType, 10),
				fmt.Sprintf("%d", u.Jobs),
				fmt.Sprintf("%d", u.GPUs),
				uifmt.Hours(u.GPUHours),
			))
		}
	}

	lines = clipLines(lines, contentHeight)
	lines = fitLinesToWidth(lines, contentWidth)
	return strings.Join(lines, "\n")
}

func nodeStateAlert(snap *slurm.Snapshot) (string, bool) {
	if snap == nil {
		return "", false
	}
	var down, drain int
	for _, n := range snap.GPUNodes() {
		state := strings.ToUpper(n.State)
		if strings.Contains(state, "DOWN") {
			down++
		}
		if strings.Contains(state, "DRAIN") {
			drain++
		}
	}
	switch {
	case down > 0 && drain > 0:
		return fmt.Sprintf("node alert: down=%d drain=%d", down, drain), true
	case down > 0:
		return fmt.Sprintf("node alert: down=%d", down), true
	case drain > 0:
		return fmt.Sprintf("node alert: drain=%d", drain), true
	default:
		return "", false
	}
}

func (m Model) sectionTitle(label string) string {
	icon := "•"
	switch {
	case strings.HasPrefix(label, "node status"):
		icon = "◌"
	case strings.HasPrefix(label, "gpu availability"):
		icon = "◍"
	case strings.HasPrefix(label, "heavy users"):
		icon = "◒"
	}
	return m.styles.tableHdr.Render(icon + " " + label)
}

func stabilizedFrameWidth(width int) int {
	if width <= 0 {
		return 0
	}
	if width <= frameRightGutter {
		return width
	}
	return width - frameRightGutter
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Second {
		return "<1s"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	return ansi.Truncate(s, maxRunes, "…")
}

func joinWithPaddingKeepRight(left, right string, width int) string {
	if width <= 0 {
		return ""
	}
	rightWidth := lipgloss.Width(right)
	if rightWidth >= width {
		return truncateRunes(right, width)
	}
	maxLeftWidth := width - rightWidth - 1
	if maxLeftWidth < 0 {
		maxLeftWidth = 0
	}
	left = truncateRunes(left, maxLeftWidth)
	leftWidth := lipgloss.Width(left)
	padding := width - leftWidth - rightWidth
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}

func clipToViewport(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	clipped := len(lines) > height
	if len(lines) > height {
		lines = lines[:height]
	}
	if clipped && len(lines) > 0 {
		lines[len(lines)-1] = truncateRunes(viewportClipText, width)
	}
	for i := range lines {
		lines[i] = truncateRunes(lines[i], width)
		if pad := width - lipgloss.Width(lines[i]); pad > 0 {
			lines[i] += strings.Repeat(" ", pad)
		}
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func clipToHeight(s string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}

func pinFooterToBottom(top, footer string, height int) string {
	if height <= 0 {
		return ""
	}
	footerLines := []string{}
	if footer != "" {
		footerLines = strings.Split(footer, "\n")
	}
	topLines := []string{}
	if top != "" {
		topLines = strings.Split(top, "\n")
	}

	maxTopLines := height - len(footerLines)
	if maxTopLines < 0 {
		maxTopLines = 0
	}
	if len(topLines) > maxTopLines {
		topLines = topLines[:maxTopLines]
	}
	for len(topLines) < maxTopLines {
		topLines = append(topLines, "")
	}

	all := append(topLines, footerLines...)
	if len(all) == 0 {
		return ""
	}
	return strings.Join(all, "\n")
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func panelContentHeight(panelHeight int) int {
	return max(1, panelHeight-2)
}

func panelContentWidth(panelWidth int) int {
	return max(1, panelWidth-4)
}

func fitLinesToWidth(lines []string, width int) []string {
	if width <= 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = truncateRunes(line, width)
	}
	return out
}

func clipLines(lines []string, maxLines int) []string {
	if maxLines <= 0 || len(lines) == 0 {
		return nil
	}
	if len(lines) <= maxLines {
		return lines
	}
	return lines[:maxLines]
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
