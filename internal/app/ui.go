package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"yashubustudio/brandmatch/brandmatch"
)

const logDebounceInterval = 150 * time.Millisecond

// viewAll shows the combined list; the other view choices show one family.
const viewAll = "Todas"

var familyLabels = map[brandmatch.Family]string{
	brandmatch.FamilySemantic:  "Semántico",
	brandmatch.FamilyCharacter: "Carácter",
	brandmatch.FamilyPhonetic:  "Fonético",
}

type tableColumn struct {
	Title  string
	Width  float32
	Render func(resultRow) string
}

// resultRow is one table line: a match of a query, or the query alone when
// nothing reached the threshold.
type resultRow struct {
	Query string
	Rank  int
	Match *brandmatch.Match
}

type uiState struct {
	service    *brandmatch.Service
	cfg        brandmatch.Config
	configPath string

	w             fyne.Window
	input         *widget.Entry
	log           *widget.Entry
	status        *widget.Label
	progress      *widget.ProgressBar
	configSummary *widget.Label
	warnings      *widget.Label
	view          *widget.Select
	threshold     *widget.Slider
	resTbl        *widget.Table
	columns       []tableColumn
	reports       []brandmatch.Report
	rows          []resultRow
	statusBind    binding.String
	logBind       binding.String
	progressBind  binding.Float
	thresholdBind binding.Float
	logLines      []string
	logMu         sync.Mutex
	logUpdateCh   chan struct{}

	searchBtn *widget.Button
	exportBtn *widget.Button
	loadBtn   *widget.Button
	corpusBtn *widget.Button
}

func buildUI(a fyne.App, cfg brandmatch.Config, configPath string) *uiState {
	u := &uiState{cfg: cfg, configPath: configPath}
	u.w = a.NewWindow("Brandmatch - Similitud de marcas")

	u.statusBind = binding.NewString()
	_ = u.statusBind.Set("Cargando marcas...")
	u.progressBind = binding.NewFloat()
	u.logBind = binding.NewString()
	u.thresholdBind = binding.NewFloat()
	_ = u.thresholdBind.Set(cfg.Threshold)
	u.startLogUpdater()

	u.input = widget.NewMultiLineEntry()
	u.input.SetPlaceHolder("Escribe una marca por línea")

	u.log = widget.NewEntryWithData(u.logBind)
	u.log.MultiLine = true
	u.log.Wrapping = fyne.TextWrapWord
	u.log.SetPlaceHolder("Registro")
	u.log.Disable()

	u.status = widget.NewLabelWithData(u.statusBind)
	u.progress = widget.NewProgressBarWithData(u.progressBind)
	u.progress.Hide()
	u.configSummary = widget.NewLabel("")
	u.warnings = widget.NewLabel("")
	u.warnings.Wrapping = fyne.TextWrapWord

	u.threshold = widget.NewSliderWithData(0, 100, u.thresholdBind)
	u.threshold.Step = 1
	thresholdLabel := widget.NewLabelWithData(binding.FloatToStringWithFormat(u.thresholdBind, "Umbral: %.0f"))

	views := []string{viewAll}
	for _, f := range brandmatch.Families {
		views = append(views, familyLabels[f])
	}
	u.view = widget.NewSelect(views, func(string) { u.refreshRows() })
	u.view.SetSelected(viewAll)

	u.searchBtn = widget.NewButtonWithIcon("Buscar", theme.SearchIcon(), func() { u.onSearch() })
	u.exportBtn = widget.NewButtonWithIcon("Exportar", theme.DocumentSaveIcon(), func() { u.onExport() })
	u.loadBtn = widget.NewButtonWithIcon("Leer consultas", theme.FolderOpenIcon(), func() { u.onLoadQueries() })
	u.corpusBtn = widget.NewButtonWithIcon("Cambiar marcas", theme.ContentAddIcon(), func() { u.onLoadCorpus() })
	settingsBtn := widget.NewButtonWithIcon("Ajustes", theme.SettingsIcon(), func() { u.openSettings() })
	for _, btn := range []*widget.Button{u.searchBtn, u.exportBtn, u.loadBtn, u.corpusBtn} {
		btn.Disable()
	}

	u.columns = u.makeColumns()
	u.resTbl = widget.NewTable(
		func() (int, int) {
			return len(u.rows) + 1, len(u.columns)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			lbl := obj.(*widget.Label)
			if id.Row == 0 {
				lbl.SetText(u.columns[id.Col].Title)
				lbl.Alignment = fyne.TextAlignCenter
				lbl.TextStyle = fyne.TextStyle{Bold: true}
				return
			}
			lbl.TextStyle = fyne.TextStyle{}
			lbl.Alignment = fyne.TextAlignLeading
			rowIdx := id.Row - 1
			if rowIdx >= len(u.rows) || id.Col >= len(u.columns) {
				lbl.SetText("")
				return
			}
			lbl.SetText(u.columns[id.Col].Render(u.rows[rowIdx]))
		},
	)
	for i, col := range u.columns {
		u.resTbl.SetColumnWidth(i, col.Width)
	}

	controlRow1 := container.NewGridWithColumns(3, u.searchBtn, u.exportBtn, settingsBtn)
	controlRow2 := container.NewGridWithColumns(2, u.loadBtn, u.corpusBtn)
	left := container.NewVBox(
		widget.NewLabelWithStyle("Consultas", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewMax(u.input),
		container.NewBorder(nil, nil, thresholdLabel, nil, u.threshold),
		controlRow1,
		controlRow2,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Progreso", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		u.progress,
		u.status,
		u.warnings,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Configuración", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		u.configSummary,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Registro", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewMax(u.log),
	)

	right := container.NewBorder(container.NewBorder(nil, nil, widget.NewLabel("Vista"), nil, u.view), nil, nil, nil, u.resTbl)
	split := container.NewHSplit(left, right)
	split.Offset = 0.35

	u.w.SetContent(split)
	u.w.Resize(fyne.NewSize(1180, 760))
	return u
}

// attach hands the ready service to the UI and enables the controls.
func (u *uiState) attach(svc *brandmatch.Service) {
	fyne.Do(func() {
		u.service = svc
		u.updateConfigSummary()
	})
	u.setBusy(false)
	u.setStatus(fmt.Sprintf("Listo (%d marcas)", svc.CorpusSize()))
	if err := svc.LoadError(); err != nil {
		u.setWarnings([]string{err.Error()})
	}
}

func (u *uiState) makeColumns() []tableColumn {
	return []tableColumn{
		{Title: "Consulta", Width: 200, Render: func(r resultRow) string { return r.Query }},
		{Title: "Índice", Width: 60, Render: func(r resultRow) string {
			if r.Match == nil {
				return ""
			}
			return strconv.Itoa(r.Rank)
		}},
		{Title: "Marca", Width: 260, Render: func(r resultRow) string {
			if r.Match == nil {
				return "Sin coincidencias"
			}
			return r.Match.Display
		}},
		{Title: "Similitud", Width: 90, Render: func(r resultRow) string {
			if r.Match == nil {
				return ""
			}
			return fmt.Sprintf("%.2f", r.Match.Score)
		}},
		{Title: "Modelo", Width: 110, Render: func(r resultRow) string {
			if r.Match == nil {
				return ""
			}
			return r.Match.Strategy
		}},
		{Title: "Familia", Width: 100, Render: func(r resultRow) string {
			if r.Match == nil {
				return ""
			}
			return familyLabels[r.Match.Family]
		}},
	}
}

// buildRows flattens reports for the table. An empty family selects the
// combined list of each report.
func buildRows(reports []brandmatch.Report, family brandmatch.Family) []resultRow {
	var rows []resultRow
	for _, r := range reports {
		matches := r.Matches
		if family != "" {
			matches = r.Group(family)
		}
		if len(matches) == 0 {
			rows = append(rows, resultRow{Query: r.Query})
			continue
		}
		for i := range matches {
			rows = append(rows, resultRow{Query: r.Query, Rank: i + 1, Match: &matches[i]})
		}
	}
	return rows
}

func (u *uiState) selectedFamily() brandmatch.Family {
	for f, label := range familyLabels {
		if label == u.view.Selected {
			return f
		}
	}
	return ""
}

func (u *uiState) refreshRows() {
	if u.resTbl == nil {
		return
	}
	u.rows = buildRows(u.reports, u.selectedFamily())
	u.resTbl.Refresh()
}

func (u *uiState) setBusy(b bool) {
	fyne.Do(func() {
		for _, btn := range []*widget.Button{u.searchBtn, u.exportBtn, u.loadBtn, u.corpusBtn} {
			if b {
				btn.Disable()
			} else {
				btn.Enable()
			}
		}
	})
}

func (u *uiState) appendLog(msg string) {
	now := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s", now, msg)

	u.logMu.Lock()
	u.logLines = append(u.logLines, line)
	if len(u.logLines) > 200 {
		u.logLines = u.logLines[len(u.logLines)-200:]
	}
	u.logMu.Unlock()

	if u.logUpdateCh == nil {
		u.flushLog()
		return
	}
	select {
	case u.logUpdateCh <- struct{}{}:
	default:
	}
}

// Write lets the service logger feed the log panel.
func (u *uiState) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			u.appendLog(line)
		}
	}
	return len(p), nil
}

func (u *uiState) startLogUpdater() {
	if u.logUpdateCh != nil {
		return
	}
	u.logUpdateCh = make(chan struct{}, 1)
	go u.logUpdateLoop()
}

func (u *uiState) logUpdateLoop() {
	timer := time.NewTimer(logDebounceInterval)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-u.logUpdateCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(logDebounceInterval)
		case <-timer.C:
			u.flushLog()
		}
	}
}

func (u *uiState) flushLog() {
	u.logMu.Lock()
	text := strings.Join(u.logLines, "\n")
	u.logMu.Unlock()
	_ = u.logBind.Set(text)
}

func (u *uiState) setStatus(text string) {
	_ = u.statusBind.Set(text)
}

func (u *uiState) setWarnings(lines []string) {
	text := ""
	if len(lines) > 0 {
		text = "Avisos:\n" + strings.Join(lines, "\n")
	}
	fyne.Do(func() { u.warnings.SetText(text) })
}

func (u *uiState) updateConfigSummary() {
	cfg := u.cfg
	penalty := "OFF"
	if cfg.Phonetic.SyllablePenalty {
		penalty = fmt.Sprintf("ON (%.2f)", cfg.Phonetic.PerSyllable)
	}
	corpus := 0
	var names []string
	if u.service != nil {
		corpus = u.service.CorpusSize()
		names = u.service.StrategyNames()
	}
	summary := fmt.Sprintf("Marcas:%d / Modelos:%s / Por familia:%d / Penalización sílabas:%s / Escala coseno:%s",
		corpus, strings.Join(names, ","), cfg.GroupLimit, penalty, cfg.Semantic.Scaling)
	u.configSummary.SetText(summary)
}

func (u *uiState) onSearch() {
	queries := brandmatch.ParseTerms(u.input.Text)
	if len(queries) == 0 {
		dialog.ShowInformation("Información", "No hay consultas", u.w)
		return
	}
	threshold, _ := u.thresholdBind.Get()
	opts := u.service.Options(threshold)
	total := len(queries)
	u.progress.Min = 0
	u.progress.Max = float64(total)
	_ = u.progressBind.Set(0)
	u.progress.Show()
	u.setStatus("Buscando...")
	u.setBusy(true)
	u.appendLog(fmt.Sprintf("Búsqueda iniciada (%d consultas, umbral %.0f)", total, threshold))
	start := time.Now()

	go func() {
		ctx := context.Background()
		reports := make([]brandmatch.Report, 0, total)
		var warnings []string
		seen := make(map[string]bool)
		for i, q := range queries {
			report := u.service.FuseWith(ctx, q, opts)
			reports = append(reports, report)
			for _, w := range report.Warnings {
				if !seen[w.Message] {
					seen[w.Message] = true
					warnings = append(warnings, w.Message)
				}
			}
			_ = u.progressBind.Set(float64(i + 1))
			u.setStatus(fmt.Sprintf("Buscando %d/%d", i+1, total))
		}

		u.setBusy(false)
		fyne.Do(func() {
			u.progress.Hide()
			u.reports = reports
			u.refreshRows()
		})
		u.setWarnings(warnings)
		elapsed := time.Since(start).Seconds()
		u.setStatus(fmt.Sprintf("Completado %d consultas (%.1fs)", total, elapsed))
		u.appendLog(fmt.Sprintf("Búsqueda completada %d consultas (%.1fs)", total, elapsed))
	}()
}

func (u *uiState) onExport() {
	if len(u.reports) == 0 {
		dialog.ShowInformation("Información", "No hay resultados para exportar", u.w)
		return
	}
	reports := u.reports
	fd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil || uc == nil {
			return
		}
		defer uc.Close()
		if strings.EqualFold(uc.URI().Extension(), ".xlsx") {
			err = brandmatch.WriteReportsXLSXTo(uc, reports)
		} else {
			err = brandmatch.WriteReportsCSV(uc, reports)
		}
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.appendLog(fmt.Sprintf("Exportado %s (%d consultas)", uc.URI().Name(), len(reports)))
	}, u.w)
	fd.SetFileName("resultados.xlsx")
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".xlsx", ".csv"}))
	fd.Show()
}

func (u *uiState) openSettings() {
	if u.service == nil {
		return
	}
	cfg := u.cfg
	groupSel := widget.NewSelect([]string{"3", "5", "10", "20"}, nil)
	groupSel.SetSelected(strconv.Itoa(cfg.GroupLimit))
	flatEntry := widget.NewEntry()
	flatEntry.SetText(strconv.Itoa(cfg.FlatLimit))
	saveCheck := widget.NewCheck("Guardar en config.json", nil)
	saveCheck.SetChecked(true)

	form := &widget.Form{Items: []*widget.FormItem{
		{Text: "Resultados por familia", Widget: groupSel},
		{Text: "Máximo en lista combinada (0 = todos)", Widget: flatEntry},
		{Text: "Persistir", Widget: saveCheck},
	}}

	dialog.NewCustomConfirm("Ajustes", "Aceptar", "Cancelar", form, func(ok bool) {
		if !ok {
			return
		}
		newCfg := u.service.Config()
		if v, err := strconv.Atoi(groupSel.Selected); err == nil {
			newCfg.GroupLimit = v
		}
		if v, err := strconv.Atoi(strings.TrimSpace(flatEntry.Text)); err == nil && v >= 0 {
			newCfg.FlatLimit = v
		}
		newCfg.Threshold, _ = u.thresholdBind.Get()
		u.service.UpdateConfig(newCfg)
		u.cfg = u.service.Config()
		u.updateConfigSummary()
		u.appendLog("Ajustes actualizados")
		if saveCheck.Checked {
			u.saveConfig(u.service)
		}
	}, u.w).Show()
}

func (u *uiState) saveConfig(svc *brandmatch.Service) {
	if err := brandmatch.SaveConfig(u.configPath, svc.Config()); err != nil {
		u.appendLog(fmt.Sprintf("No se pudo guardar la configuración: %v", err))
	}
}

func (u *uiState) onLoadQueries() {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		path := rc.URI().Path()
		rc.Close()
		lines, err := brandmatch.ReadFirstColumn(path, brandmatch.HeaderAuto, "")
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		if len(lines) == 0 {
			dialog.ShowError(errors.New("el archivo no contiene consultas"), u.w)
			return
		}
		u.input.SetText(strings.Join(lines, "\n"))
		u.appendLog(fmt.Sprintf("Consultas leídas: %s (%d)", filepath.Base(path), len(lines)))
	}, u.w)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".txt", ".csv", ".tsv", ".xlsx"}))
	fd.Show()
}

func (u *uiState) onLoadCorpus() {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		path := rc.URI().Path()
		rc.Close()
		u.setBusy(true)
		u.setStatus("Cargando marcas...")
		svc := u.service
		go func() {
			defer u.setBusy(false)
			if err := svc.UseCorpusFile(context.Background(), path); err != nil {
				fyne.Do(func() { dialog.ShowError(err, u.w) })
				u.setStatus("Error al cargar marcas")
				return
			}
			u.saveConfig(svc)
			cfg := svc.Config()
			fyne.Do(func() {
				u.cfg = cfg
				u.updateConfigSummary()
			})
			u.setWarnings(nil)
			u.setStatus(fmt.Sprintf("Listo (%d marcas)", svc.CorpusSize()))
			u.prepareInBackground(svc)
		}()
	}, u.w)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".txt", ".csv", ".tsv", ".xlsx"}))
	fd.Show()
}

// prepareInBackground builds the strategy indices so the first search does
// not pay for model loading and corpus encoding.
func (u *uiState) prepareInBackground(svc *brandmatch.Service) {
	go func() {
		start := time.Now()
		if err := svc.Prepare(context.Background()); err != nil {
			u.appendLog(fmt.Sprintf("Algunos modelos no están disponibles: %v", err))
		}
		u.appendLog(fmt.Sprintf("Índices listos (%.1fs)", time.Since(start).Seconds()))
	}()
}
