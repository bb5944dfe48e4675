// Package blade implements the blade-side HTTP surface shared by every
// role (§4.8, §6) and the scraper intent executor (§4.7).
package blade

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
)

// Item is one scraped record, forwarded verbatim to the intent's target.
type Item map[string]interface{}

// Installer fetches and installs a scraping module into a blade's venv,
// mirroring the original's `pip install
// git+https://github.com/<owner/repo>@<version>#egg=<module_name>` (§4.7
// step 3). It is treated as an exclusive, blocking action.
type Installer interface {
	Install(ctx context.Context, venv, module, version string) error
}

// PipInstaller shells out to the venv's own pip, the idiomatic-Go stand-in
// for the original's dynamic module install: the scraping modules
// themselves remain Python packages distributed via GitHub, so a
// subprocess boundary replaces in-process dynamic import (§9 design
// note).
type PipInstaller struct{}

func (PipInstaller) Install(ctx context.Context, venv, module, version string) error {
	pip := filepath.Join(venv, "bin", "pip")
	name := moduleBaseName(module)
	spec := fmt.Sprintf("git+https://github.com/%s@%s#egg=%s", module, version, name)

	cmd := exec.CommandContext(ctx, pip, "install", "--upgrade", spec)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pip install %s: %w: %s", spec, err, out)
	}
	return nil
}

// ModuleRunner invokes an installed scraping module's query and streams
// back its items. The original awaits a lazy async generator; here that
// generator lives across a subprocess boundary and items arrive as
// newline-delimited JSON on stdout (§9 design note: lazy generator
// forwarding -> channel/message passing).
type ModuleRunner interface {
	Query(ctx context.Context, venv, moduleName string, parameters map[string]interface{}) (<-chan Item, <-chan error)
}

// SubprocessRunner runs `python -m <module_name>` inside the blade's venv,
// feeding it the query parameters as a JSON line on stdin and reading one
// JSON item per line of stdout until the process exits or ctx is
// cancelled.
type SubprocessRunner struct{}

func (SubprocessRunner) Query(ctx context.Context, venv, moduleName string, parameters map[string]interface{}) (<-chan Item, <-chan error) {
	items := make(chan Item)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		python := filepath.Join(venv, "bin", "python")
		cmd := exec.CommandContext(ctx, python, "-m", moduleName)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			errs <- fmt.Errorf("opening stdin for %s: %w", moduleName, err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errs <- fmt.Errorf("opening stdout for %s: %w", moduleName, err)
			return
		}

		if err := cmd.Start(); err != nil {
			errs <- fmt.Errorf("starting module %s: %w", moduleName, err)
			return
		}

		paramLine, err := json.Marshal(parameters)
		if err != nil {
			errs <- fmt.Errorf("encoding parameters for %s: %w", moduleName, err)
			_ = cmd.Process.Kill()
			return
		}
		_, _ = stdin.Write(append(paramLine, '\n'))
		_ = stdin.Close()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var item Item
			if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
				continue
			}
			select {
			case items <- item:
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				return
			}
		}

		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("module %s exited: %w", moduleName, err)
		}
	}()

	return items, errs
}

// moduleBaseName returns the last path segment of an owner/repo module
// path, the Go analogue of Python's os.path.basename used on the module
// string in §4.7 step 1.
func moduleBaseName(module string) string {
	return filepath.Base(module)
}
