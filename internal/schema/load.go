package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kvorm/internal/meta"
)

// LoadMode controls how errors are handled during schema loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult holds the entity types declared in a schema directory.
type LoadResult struct {
	Types     []*meta.Type
	Registry  *meta.Registry // every type in Types, registered
	FileCount int
}

// LoadError is an error found while loading a schema directory.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeFields   = "E101" // Missing or empty fields
	ErrCodeType     = "E102" // Missing or unknown field type
	ErrCodeMarker   = "E103" // Malformed index marker
	ErrCodeMetadata = "E110" // Registration or resolution failure
)

// Load compiles every entity declared under entity: in the CUE package
// at dir, registers them, and resolves each type's metadata so that
// identifier problems surface here rather than at first save.
func Load(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	result, errs := build(dir, []string{"."}, mode)
	if result != nil {
		result.FileCount = len(cueFiles)
	}
	return result, errs
}

// LoadFiles is Load restricted to the named files, given relative to dir.
// The files must belong to one package.
func LoadFiles(dir string, files []string, mode LoadMode) (*LoadResult, []error) {
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: "no CUE files given"}}
	}
	for _, f := range files {
		if filepath.Ext(f) != ".cue" {
			return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("not a CUE file: %s", f)}}
		}
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema file not found: %s", f)}}
		}
	}

	args := make([]string, len(files))
	for i, f := range files {
		args[i] = "./" + filepath.ToSlash(f)
	}
	result, errs := build(dir, args, mode)
	if result != nil {
		result.FileCount = len(files)
	}
	return result, errs
}

func build(dir string, args []string, mode LoadMode) (*LoadResult, []error) {
	ctx := cuecontext.New()
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	return compileEntities(value, mode)
}

// CompileString compiles entity declarations from CUE source.
func CompileString(src string) (*LoadResult, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{convertCompileError(formatCUEError(err), "source")}
	}
	return compileEntities(value, LoadModeCollectAll)
}

func compileEntities(value cue.Value, mode LoadMode) (*LoadResult, []error) {
	var errs []error
	result := &LoadResult{Registry: meta.NewRegistry()}

	entities := value.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: "no entities found in schema"}}
	}
	iter, err := entities.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating entities: %v", err)}}
	}

	for iter.Next() {
		t, err := CompileEntity(iter.Value())
		if err == nil {
			err = checkResolvable(t)
		}
		if err == nil {
			err = result.Registry.Register(t)
		}
		if err != nil {
			errs = append(errs, convertCompileError(err, "entity."+iter.Label()))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Types = append(result.Types, t)
	}

	return result, errs
}

// checkResolvable resolves t in a scratch registry so a type with a bad
// identifier declaration never reaches the result.
func checkResolvable(t *meta.Type) error {
	scratch := meta.NewRegistry()
	if err := scratch.Register(t); err != nil {
		return err
	}
	_, err := scratch.Resolve(t.Name)
	return err
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compile or metadata error to a LoadError
// with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    mapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	if meta.IsMetadataError(err) {
		return &LoadError{Code: ErrCodeMetadata, Message: err.Error()}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

func mapFieldToErrorCode(field string) string {
	switch field {
	case "fields":
		return ErrCodeFields
	case "type":
		return ErrCodeType
	case "index", "sorted", "temporal":
		return ErrCodeMarker
	default:
		return ErrCodeGeneric
	}
}
