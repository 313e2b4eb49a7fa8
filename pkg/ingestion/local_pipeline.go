// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/repoindex/pkg/llm"
	"github.com/kraklabs/repoindex/pkg/store"
)

// LocalPipeline orchestrates ingestion into a local SQLite-backed store (C8).
// It drives the task state machine queued -> fetching -> parsing ->
// embedding -> summarizing -> overview -> finalizing -> completed, failing
// the task at whichever step first errors out.
type LocalPipeline struct {
	config     Config
	logger     *slog.Logger
	repoLoader *RepoLoader
	parser     CodeParser
	embedGen   *EmbeddingGenerator
	chat       llm.Provider
	analyzer   *Analyzer
	store      *store.Store
}

// IngestionResult summarizes one completed ingestion run.
type IngestionResult struct {
	ProjectID    string
	RepositoryID string
	RunID        string

	FilesProcessed     int
	FunctionsExtracted int
	TypesExtracted     int
	DefinesEdges       int
	DependencyEdges    int
	SummariesGenerated int
	OverviewGenerated  bool

	ParseErrors       int
	ParseErrorRate    float64
	EmbeddingErrors   int
	CodeTextTruncated int
	TopSkipReasons    map[string]int

	ParseDuration    time.Duration
	AnalysisDuration time.Duration
	FinalizeDuration time.Duration
	TotalDuration    time.Duration
}

// probeEmbeddingDim embeds a short fixed string to learn the provider's
// vector width before opening the store, since the vec0 virtual tables are
// sized once at schema creation and every later write must match exactly.
func probeEmbeddingDim(ctx context.Context, provider EmbeddingProvider) (int, error) {
	vec, err := provider.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	return len(vec), nil
}

// NewLocalPipeline wires a pipeline's components from config: the repo
// loader, the selected code parser, the embedding provider/generator, the
// chat provider backing file and repository summaries, and the SQLite
// store, sized to the embedding provider's actual vector width.
func NewLocalPipeline(ctx context.Context, config Config, logger *slog.Logger) (*LocalPipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repoLoader := NewRepoLoader(logger)

	parser := selectParser(config.IngestionConfig.ParserMode, logger)
	if config.IngestionConfig.MaxCodeTextBytes > 0 {
		parser.SetMaxCodeTextSize(config.IngestionConfig.MaxCodeTextBytes)
	}

	embeddingProvider, err := CreateEmbeddingProvider(config.IngestionConfig.EmbeddingProvider, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	embedWorkers := config.IngestionConfig.Concurrency.EmbedWorkers
	if embedWorkers <= 0 {
		embedWorkers = 8
	}
	embedGen := NewEmbeddingGenerator(embeddingProvider, embedWorkers, logger)

	dim, err := probeEmbeddingDim(ctx, embeddingProvider)
	if err != nil {
		return nil, err
	}

	chatProvider, err := llm.NewProvider(llm.ProviderConfig{
		Type:         config.IngestionConfig.ChatProvider,
		BaseURL:      config.IngestionConfig.ChatBaseURL,
		APIKey:       config.IngestionConfig.ChatAPIKey,
		DefaultModel: config.IngestionConfig.ChatModel,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat provider: %w", err)
	}
	analyzer := NewAnalyzer(chatProvider, config.IngestionConfig.ChatModel, logger)

	dataDir := config.IngestionConfig.LocalDataDir
	if dataDir == "" {
		dataDir = "."
	}
	st, err := store.Open(store.Config{
		Path:         filepath.Join(dataDir, "cie.db"),
		EmbeddingDim: dim,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &LocalPipeline{
		config:     config,
		logger:     logger,
		repoLoader: repoLoader,
		parser:     parser,
		embedGen:   embedGen,
		chat:       chatProvider,
		analyzer:   analyzer,
		store:      st,
	}, nil
}

func selectParser(mode string, logger *slog.Logger) CodeParser {
	switch ParserMode(mode) {
	case ParserModeTreeSitter:
		logger.Info("parser.mode", "mode", "treesitter")
		return NewTreeSitterParser(logger)
	case ParserModeSimplified:
		logger.Info("parser.mode", "mode", "simplified")
		return NewParser(logger)
	default:
		if ts := NewTreeSitterParser(logger); ts != nil {
			logger.Info("parser.mode", "mode", "treesitter", "selected_by", "auto")
			return ts
		}
		logger.Info("parser.mode", "mode", "simplified", "selected_by", "auto", "reason", "treesitter_unavailable")
		return NewParser(logger)
	}
}

// Close releases the pipeline's store handle and any temporary clone
// directories created by the repo loader.
func (p *LocalPipeline) Close() error {
	var lastErr error
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			lastErr = err
		}
	}
	if p.repoLoader != nil {
		if err := p.repoLoader.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Store exposes the underlying SQLite store, for callers (status, query,
// ask) that read back what a pipeline run wrote.
func (p *LocalPipeline) Store() *store.Store {
	return p.store
}

func (p *LocalPipeline) generateRunID(startTime time.Time) string {
	baseID := fmt.Sprintf("run-%s-%d", p.config.ProjectID, startTime.Truncate(time.Second).Unix())
	hash := sha256.Sum256([]byte(baseID))
	return hex.EncodeToString(hash[:16])
}

// Run executes one full ingestion: fetch, parse, embed, summarize, and
// overview, persisting progress into the task row at every step so a
// concurrent 'cie status' can observe it mid-run.
func (p *LocalPipeline) Run(ctx context.Context) (*IngestionResult, error) {
	startTime := time.Now()
	runID := p.generateRunID(startTime)
	p.logger.Info("ingestion.start", "project_id", p.config.ProjectID, "run_id", runID)

	repositoryID, err := p.store.UpsertRepository(ctx, store.Repository{
		ProjectID:         p.config.ProjectID,
		SourceType:        p.config.RepoSource.Type,
		SourceValue:       p.config.RepoSource.Value,
		Ref:               p.config.RepoSource.Ref,
		Status:            "pending",
		ChatProvider:      p.config.IngestionConfig.ChatProvider,
		ChatModel:         p.config.IngestionConfig.ChatModel,
		EmbeddingProvider: p.config.IngestionConfig.EmbeddingProvider,
		EmbeddingModel:    p.config.IngestionConfig.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert repository: %w", err)
	}
	if err := p.store.CreateTask(ctx, runID, repositoryID); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	result, err := p.run(ctx, runID, repositoryID, startTime)
	if err != nil {
		if failErr := p.store.FailTask(ctx, runID, err.Error()); failErr != nil {
			p.logger.Error("ingestion.fail_task.error", "run_id", runID, "err", failErr)
		}
		_ = p.store.UpdateRepositoryStatus(ctx, repositoryID, "failed")
		return nil, err
	}
	return result, nil
}

func (p *LocalPipeline) run(ctx context.Context, runID, repositoryID string, startTime time.Time) (*IngestionResult, error) {
	// --- fetching ---
	if err := p.store.UpdateTaskStep(ctx, runID, "fetching"); err != nil {
		return nil, err
	}
	_ = p.store.UpdateRepositoryStatus(ctx, repositoryID, "fetching")

	loadResult, err := p.repoLoader.LoadRepository(
		p.config.RepoSource,
		p.config.IngestionConfig.ExcludeGlobs,
		p.config.IngestionConfig.MaxFileSizeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("load repository: %w", err)
	}
	sort.Slice(loadResult.Files, func(i, j int) bool {
		return loadResult.Files[i].Path < loadResult.Files[j].Path
	})
	if loadResult.Metadata != nil {
		if _, err := p.store.UpsertRepository(ctx, store.Repository{
			ID:                repositoryID,
			ProjectID:         p.config.ProjectID,
			SourceType:        p.config.RepoSource.Type,
			SourceValue:       p.config.RepoSource.Value,
			Ref:               loadResult.ResolvedRef,
			RootPath:          loadResult.RootPath,
			Owner:             loadResult.Metadata.Owner,
			Name:              loadResult.Metadata.Name,
			Description:       loadResult.Metadata.Description,
			DefaultBranch:     loadResult.Metadata.DefaultBranch,
			Stars:             loadResult.Metadata.Stars,
			Forks:             loadResult.Metadata.Forks,
			FileCount:         loadResult.FileCount,
			Status:            "fetching",
			ChatProvider:      p.config.IngestionConfig.ChatProvider,
			ChatModel:         p.config.IngestionConfig.ChatModel,
			EmbeddingProvider: p.config.IngestionConfig.EmbeddingProvider,
			EmbeddingModel:    p.config.IngestionConfig.EmbeddingModel,
		}); err != nil {
			p.logger.Warn("ingestion.repository_metadata.update.failed", "err", err)
		}
	}
	if err := p.store.UpdateTaskProgress(ctx, runID, len(loadResult.Files), 0); err != nil {
		p.logger.Warn("ingestion.task_progress.update.failed", "err", err)
	}

	// --- parsing ---
	if err := p.store.UpdateTaskStep(ctx, runID, "parsing"); err != nil {
		return nil, err
	}
	_ = p.store.UpdateRepositoryStatus(ctx, repositoryID, "parsing")

	parseStart := time.Now()
	parseBatch := p.config.IngestionConfig.Concurrency.ParseBatch
	if parseBatch <= 0 {
		parseBatch = 100
	}
	parseWorkers := p.config.IngestionConfig.Concurrency.ParseWorkers
	if parseWorkers <= 0 {
		parseWorkers = 4
	}

	pr, parseErrors, err := p.parseAndPersist(ctx, repositoryID, runID, loadResult.Files, parseBatch, parseWorkers)
	if err != nil {
		return nil, err
	}
	parseDuration := time.Since(parseStart)
	codeTextTruncated := p.parser.GetTruncatedCount()

	parseErrorRate := 0.0
	if len(loadResult.Files) > 0 {
		parseErrorRate = float64(parseErrors) / float64(len(loadResult.Files))
	}

	// --- embedding, summarizing: 3-way fan-out over functions/types chunking,
	// file-level dependency resolution, and per-file summaries ---
	if err := p.store.UpdateTaskStep(ctx, runID, "embedding"); err != nil {
		return nil, err
	}
	_ = p.store.UpdateRepositoryStatus(ctx, repositoryID, "embedding")
	analysisStart := time.Now()

	chunker := NewChunker(p.embedGen, p.store, p.logger)
	functionsByFile, typesByFile := groupEntitiesByFile(pr.functions, pr.types)

	var embeddingErrors int32
	var dependencyEdges int32

	eg, egCtx := errgroup.WithContext(ctx)
	for _, f := range pr.files {
		f := f
		eg.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("ingestion.embed_file.panic", "file", f.Path, "panic", r)
					atomic.AddInt32(&embeddingErrors, 1)
				}
			}()
			chunker.EmbedFile(egCtx, f.ID, functionsByFile[f.Path], typesByFile[f.Path])
			return nil
		})
	}

	depResolver := NewFileDependencyResolver(pr.files)
	importsByFile := groupImportsByFile(pr.imports)
	for _, f := range pr.files {
		f := f
		eg.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("ingestion.resolve_deps.panic", "file", f.Path, "panic", r)
				}
			}()
			deps, external := depResolver.Resolve(f.Path, importsByFile[f.Path])
			if len(deps) > 0 {
				if err := p.store.InsertFileDependencies(egCtx, deps); err != nil {
					p.logger.Warn("ingestion.file_dependencies.insert.failed", "file", f.Path, "err", err)
					return nil
				}
				atomic.AddInt32(&dependencyEdges, int32(len(deps)))
			}
			if len(external) > 0 {
				if err := p.store.InsertExternalImports(egCtx, f.ID, external); err != nil {
					p.logger.Warn("ingestion.external_imports.insert.failed", "file", f.Path, "err", err)
				}
			}
			return nil
		})
	}

	summaryBatch := p.config.IngestionConfig.Concurrency.SummaryBatch
	if summaryBatch <= 0 {
		summaryBatch = 5
	}
	summaryInputs := buildSummaryInputs(pr.files, functionsByFile, typesByFile, importsByFile)
	var summaries map[string]string
	eg.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("ingestion.summarize.panic", "panic", r)
			}
		}()
		if err := p.store.UpdateTaskStep(egCtx, runID, "summarizing"); err != nil {
			p.logger.Warn("ingestion.task_step.update.failed", "err", err)
		}
		summaries = p.analyzer.SummarizeFiles(egCtx, summaryInputs, summaryBatch)
		return nil
	})

	_ = eg.Wait() // every goroutine already turns its own failures into logged warnings

	// Persist summaries and their embeddings now that every file's summary is
	// known, then roll the repository overview from the subset the analyzer
	// contract prioritizes (README, entry points, the rest by entity count).
	for path, summary := range summaries {
		fileID := GenerateFileID(path)
		if err := p.store.UpdateFileSummary(ctx, fileID, summary); err != nil {
			p.logger.Warn("ingestion.file_summary.persist.failed", "path", path, "err", err)
			continue
		}
		if err := chunker.EmbedSummary(ctx, fileID, path, summary); err != nil {
			p.logger.Warn("ingestion.file_summary.embed.failed", "path", path, "err", err)
		}
	}

	if err := p.store.UpdateTaskStep(ctx, runID, "overview"); err != nil {
		p.logger.Warn("ingestion.task_step.update.failed", "err", err)
	}
	_ = p.store.UpdateRepositoryStatus(ctx, repositoryID, "overview")

	overviewGenerated := false
	counts, err := p.store.FileCountsByRepository(ctx, repositoryID)
	if err != nil {
		p.logger.Warn("ingestion.overview_counts.query.failed", "err", err)
	} else if len(counts) > 0 {
		selected := SelectOverviewFiles(counts, 100)
		overviewFiles := make([]OverviewFileSummary, 0, len(selected))
		for _, c := range selected {
			overviewFiles = append(overviewFiles, OverviewFileSummary{Path: c.Path, Summary: summaries[c.Path]})
		}
		overview, err := p.analyzer.GenerateOverview(ctx, p.config.ProjectID, loadResult.Languages, overviewFiles)
		if err != nil {
			p.logger.Warn("ingestion.overview.generate.failed", "err", err)
		} else if err := p.store.UpdateRepositoryOverview(ctx, repositoryID, overview); err != nil {
			p.logger.Warn("ingestion.overview.persist.failed", "err", err)
		} else {
			overviewGenerated = true
		}
	}
	analysisDuration := time.Since(analysisStart)

	// --- finalizing ---
	finalizeStart := time.Now()
	if err := p.store.UpdateTaskStep(ctx, runID, "finalizing"); err != nil {
		p.logger.Warn("ingestion.task_step.update.failed", "err", err)
	}
	if err := p.store.UpdateTaskCounts(ctx, runID, len(pr.functions), len(pr.types)); err != nil {
		p.logger.Warn("ingestion.task_counts.update.failed", "err", err)
	}
	if err := p.store.CompleteTask(ctx, runID); err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	if err := p.store.UpdateRepositoryStatus(ctx, repositoryID, "completed"); err != nil {
		p.logger.Warn("ingestion.repository_status.update.failed", "err", err)
	}
	finalizeDuration := time.Since(finalizeStart)
	totalDuration := time.Since(startTime)

	result := &IngestionResult{
		ProjectID:          p.config.ProjectID,
		RepositoryID:       repositoryID,
		RunID:              runID,
		FilesProcessed:     len(pr.files),
		FunctionsExtracted: len(pr.functions),
		TypesExtracted:     len(pr.types),
		DefinesEdges:       len(pr.defines),
		DependencyEdges:    int(dependencyEdges),
		SummariesGenerated: len(summaries),
		OverviewGenerated:  overviewGenerated,
		ParseErrors:        parseErrors,
		ParseErrorRate:     parseErrorRate,
		EmbeddingErrors:    int(embeddingErrors),
		CodeTextTruncated:  codeTextTruncated,
		TopSkipReasons:     loadResult.SkipReasons,
		ParseDuration:      parseDuration,
		AnalysisDuration:   analysisDuration,
		FinalizeDuration:   finalizeDuration,
		TotalDuration:      totalDuration,
	}

	p.logger.Info("ingestion.complete",
		"project_id", p.config.ProjectID,
		"run_id", runID,
		"files", result.FilesProcessed,
		"functions", result.FunctionsExtracted,
		"types", result.TypesExtracted,
		"dependency_edges", result.DependencyEdges,
		"summaries", result.SummariesGenerated,
		"overview_generated", result.OverviewGenerated,
		"parse_errors", result.ParseErrors,
		"embedding_errors", result.EmbeddingErrors,
		"total_duration_ms", result.TotalDuration.Milliseconds(),
	)
	return result, nil
}

// parseFilesResult holds the aggregated output of parsing every file in a
// repository.
type parseFilesResult struct {
	files        []FileEntity
	functions    []FunctionEntity
	types        []TypeEntity
	defines      []DefinesEdge
	definesTypes []DefinesTypeEdge
	imports      []ImportEntity
}

// parseAndPersist parses files in sequential batches of batchSize (the hard
// Parse stage contract), persisting each batch's files/functions/types/
// imports before moving to the next so a crash mid-run loses at most one
// batch's writes.
func (p *LocalPipeline) parseAndPersist(ctx context.Context, repositoryID, runID string, files []FileInfo, batchSize, workers int) (*parseFilesResult, int, error) {
	agg := &parseFilesResult{}
	var totalErrors int
	processed := 0

	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[start:end]

		batchResult, errCount := p.parseBatch(ctx, batch, workers)
		totalErrors += errCount

		fileRows := make([]store.File, 0, len(batchResult.files))
		for _, f := range batchResult.files {
			fileRows = append(fileRows, store.File{
				ID: f.ID, RepositoryID: repositoryID, Path: f.Path, Language: f.Language,
				Role: f.Role, Content: f.Content, SizeBytes: f.Size, ContentHash: f.Hash,
			})
		}
		if err := p.store.UpsertFiles(ctx, fileRows); err != nil {
			return nil, totalErrors, fmt.Errorf("persist files: %w", err)
		}

		if err := p.persistFunctions(ctx, batchResult.functions); err != nil {
			return nil, totalErrors, err
		}
		if err := p.persistTypes(ctx, batchResult.types); err != nil {
			return nil, totalErrors, err
		}
		if err := p.persistImports(ctx, batchResult.imports); err != nil {
			return nil, totalErrors, err
		}

		agg.files = append(agg.files, batchResult.files...)
		agg.functions = append(agg.functions, batchResult.functions...)
		agg.types = append(agg.types, batchResult.types...)
		agg.defines = append(agg.defines, batchResult.defines...)
		agg.definesTypes = append(agg.definesTypes, batchResult.definesTypes...)
		agg.imports = append(agg.imports, batchResult.imports...)

		processed = end
		if err := p.store.UpdateTaskProgress(ctx, runID, len(files), processed); err != nil {
			p.logger.Warn("ingestion.task_progress.update.failed", "err", err)
		}
	}

	return agg, totalErrors, nil
}

func (p *LocalPipeline) persistFunctions(ctx context.Context, functions []FunctionEntity) error {
	if len(functions) == 0 {
		return nil
	}
	rows := make([]store.FunctionRow, len(functions))
	for i, fn := range functions {
		rows[i] = store.FunctionRow{
			ID: fn.ID, FileID: GenerateFileID(fn.FilePath), Name: fn.Name, Signature: fn.Signature,
			CodeText: fn.CodeText, FilePath: fn.FilePath,
			StartLine: fn.StartLine, EndLine: fn.EndLine, StartCol: fn.StartCol, EndCol: fn.EndCol,
		}
	}
	if err := p.store.InsertFunctions(ctx, rows); err != nil {
		return fmt.Errorf("persist functions: %w", err)
	}
	return nil
}

func (p *LocalPipeline) persistTypes(ctx context.Context, types []TypeEntity) error {
	if len(types) == 0 {
		return nil
	}
	rows := make([]store.TypeRow, len(types))
	for i, t := range types {
		rows[i] = store.TypeRow{
			ID: t.ID, FileID: GenerateFileID(t.FilePath), Name: t.Name, Kind: t.Kind, CodeText: t.CodeText,
			StartLine: t.StartLine, EndLine: t.EndLine, StartCol: t.StartCol, EndCol: t.EndCol,
		}
	}
	if err := p.store.InsertTypes(ctx, rows); err != nil {
		return fmt.Errorf("persist types: %w", err)
	}
	return nil
}

func (p *LocalPipeline) persistImports(ctx context.Context, imports []ImportEntity) error {
	if len(imports) == 0 {
		return nil
	}
	rows := make([]store.ImportRow, len(imports))
	for i, imp := range imports {
		rows[i] = store.ImportRow{
			ID: imp.ID, FileID: GenerateFileID(imp.FilePath), ImportPath: imp.ImportPath,
			Alias: imp.Alias, StartLine: imp.StartLine,
		}
	}
	if err := p.store.InsertImports(ctx, rows); err != nil {
		return fmt.Errorf("persist imports: %w", err)
	}
	return nil
}


// parseBatch parses one batch of files concurrently across workers.
func (p *LocalPipeline) parseBatch(ctx context.Context, files []FileInfo, numWorkers int) (*parseFilesResult, int) {
	if len(files) == 0 {
		return &parseFilesResult{}, 0
	}
	if len(files) < 10 || numWorkers <= 1 {
		return p.parseSequential(ctx, files)
	}

	jobs := make(chan int, len(files))
	type fileResult struct {
		result *ParseResult
		err    error
	}
	results := make(chan fileResult, len(files))
	var errorCount int32
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				fileInfo := files[i]
				pr, err := p.parser.ParseFile(fileInfo)
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
					p.logger.Warn("ingestion.parse_file.error", "path", fileInfo.Path, "err", err)
					results <- fileResult{err: err}
					continue
				}
				results <- fileResult{result: pr}
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	agg := &parseFilesResult{}
	for fr := range results {
		if fr.err != nil {
			continue
		}
		agg.files = append(agg.files, fr.result.File)
		agg.functions = append(agg.functions, AssignParentClasses(fr.result.Functions, fr.result.Types)...)
		agg.types = append(agg.types, fr.result.Types...)
		agg.defines = append(agg.defines, fr.result.Defines...)
		agg.definesTypes = append(agg.definesTypes, fr.result.DefinesTypes...)
		agg.imports = append(agg.imports, fr.result.Imports...)
	}
	return agg, int(errorCount)
}

func (p *LocalPipeline) parseSequential(ctx context.Context, files []FileInfo) (*parseFilesResult, int) {
	agg := &parseFilesResult{}
	errorCount := 0
	for _, fileInfo := range files {
		select {
		case <-ctx.Done():
			return agg, errorCount
		default:
		}
		pr, err := p.parser.ParseFile(fileInfo)
		if err != nil {
			errorCount++
			p.logger.Warn("ingestion.parse_file.error", "path", fileInfo.Path, "err", err)
			continue
		}
		agg.files = append(agg.files, pr.File)
		agg.functions = append(agg.functions, AssignParentClasses(pr.Functions, pr.Types)...)
		agg.types = append(agg.types, pr.Types...)
		agg.defines = append(agg.defines, pr.Defines...)
		agg.definesTypes = append(agg.definesTypes, pr.DefinesTypes...)
		agg.imports = append(agg.imports, pr.Imports...)
	}
	return agg, errorCount
}

func groupEntitiesByFile(functions []FunctionEntity, types []TypeEntity) (map[string][]FunctionEntity, map[string][]TypeEntity) {
	byFile := make(map[string][]FunctionEntity)
	for _, fn := range functions {
		byFile[fn.FilePath] = append(byFile[fn.FilePath], fn)
	}
	typesByFile := make(map[string][]TypeEntity)
	for _, t := range types {
		typesByFile[t.FilePath] = append(typesByFile[t.FilePath], t)
	}
	return byFile, typesByFile
}

func groupImportsByFile(imports []ImportEntity) map[string][]ImportEntity {
	byFile := make(map[string][]ImportEntity)
	for _, imp := range imports {
		byFile[imp.FilePath] = append(byFile[imp.FilePath], imp)
	}
	return byFile
}

func buildSummaryInputs(files []FileEntity, functionsByFile map[string][]FunctionEntity, typesByFile map[string][]TypeEntity, importsByFile map[string][]ImportEntity) []FileSummaryInput {
	inputs := make([]FileSummaryInput, 0, len(files))
	for _, f := range files {
		inputs = append(inputs, FileSummaryInput{
			Path: f.Path, Language: f.Language, Content: f.Content,
			Functions: functionsByFile[f.Path], Types: typesByFile[f.Path], Imports: importsByFile[f.Path],
		})
	}
	return inputs
}
