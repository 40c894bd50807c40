package toolbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"
)

// Execution ceilings for subprocess-backed tools.
const (
	shellTimeout   = 30 * time.Second
	installTimeout = 120 * time.Second
)

// RegisterBuiltin registers the fixed developer tool set on a registry.
func RegisterBuiltin(reg *Registry) {
	reg.RegisterAll(BuiltinTools())
}

// BuiltinTools returns the fixed developer tool set.
func BuiltinTools() []Descriptor {
	return []Descriptor{
		writeFileTool(),
		readFileTool(),
		listDirectoryTool(),
		runShellCommandTool(),
		createDirectoryTool(),
		deletePathTool(),
		pathExistsTool(),
		workingDirectoryTool(),
		installPackageTool(),
	}
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func writeFileTool() Descriptor {
	return Descriptor{
		Name:        "write_file",
		Description: "Write or overwrite content to a file. Creates parent directories if needed.",
		Parameters: objectSchema([]string{"file_path", "content"}, map[string]interface{}{
			"file_path": stringProp("Path of the file to write."),
			"content":   stringProp("The full file content to write."),
		}),
		Run: func(args map[string]interface{}) (string, error) {
			path, ok := StringArg(args, "file_path")
			if !ok || path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			content, ok := StringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("write_file: creating directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return "", fmt.Errorf("write_file: %w", err)
			}
			return fmt.Sprintf("File %q written successfully (%d bytes).", path, len(content)), nil
		},
	}
}

func readFileTool() Descriptor {
	return Descriptor{
		Name:        "read_file",
		Description: "Read and return the content of a file.",
		Parameters: objectSchema([]string{"file_path"}, map[string]interface{}{
			"file_path": stringProp("Path of the file to read."),
		}),
		Run: func(args map[string]interface{}) (string, error) {
			path, ok := StringArg(args, "file_path")
			if !ok || path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return "", fmt.Errorf("file %q not found", path)
				}
				return "", fmt.Errorf("read_file: %w", err)
			}
			return fmt.Sprintf("File %q content (%d bytes):\n\n%s", path, len(data), data), nil
		},
	}
}

func listDirectoryTool() Descriptor {
	return Descriptor{
		Name:        "list_directory",
		Description: "List files and directories at a path. Default: current directory.",
		Parameters: objectSchema(nil, map[string]interface{}{
			"path": stringProp("Directory to list. Default: \".\""),
		}),
		Run: func(args map[string]interface{}) (string, error) {
			path, _ := StringArg(args, "path")
			if path == "" {
				path = "."
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return "", fmt.Errorf("list_directory: %w", err)
			}
			if len(entries) == 0 {
				return fmt.Sprintf("Directory %q is empty.", path), nil
			}

			var dirs, files []os.DirEntry
			for _, e := range entries {
				if e.IsDir() {
					dirs = append(dirs, e)
				} else {
					files = append(files, e)
				}
			}
			sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name() < dirs[j].Name() })
			sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

			var sb strings.Builder
			fmt.Fprintf(&sb, "Directory %q contents:\n", path)
			for _, d := range dirs {
				fmt.Fprintf(&sb, "  %s/\n", d.Name())
			}
			for _, f := range files {
				size := int64(0)
				if info, err := f.Info(); err == nil {
					size = info.Size()
				}
				fmt.Fprintf(&sb, "  %s (%d bytes)\n", f.Name(), size)
			}
			return sb.String(), nil
		},
	}
}

func runShellCommandTool() Descriptor {
	return Descriptor{
		Name: "run_shell_command",
		Description: "Execute a shell command and return its stdout, stderr, and exit code. " +
			"Commands are killed after 30 seconds.",
		Parameters: objectSchema([]string{"command"}, map[string]interface{}{
			"command": stringProp("The command to run."),
		}),
		Run: func(args map[string]interface{}) (string, error) {
			command, ok := StringArg(args, "command")
			if !ok || command == "" {
				return "", fmt.Errorf("command is required")
			}
			return runSubprocess(shellCommand(command), shellTimeout)
		},
	}
}

func createDirectoryTool() Descriptor {
	return Descriptor{
		Name:        "create_directory",
		Description: "Create a directory, including parent directories.",
		Parameters: objectSchema([]string{"dir_path"}, map[string]interface{}{
			"dir_path": stringProp("Path of the directory to create."),
		}),
		Run: func(args map[string]interface{}) (string, error) {
			path, ok := StringArg(args, "dir_path")
			if !ok || path == "" {
				return "", fmt.Errorf("dir_path is required")
			}
			if err := os.MkdirAll(path, 0o755); err != nil {
				return "", fmt.Errorf("create_directory: %w", err)
			}
			return fmt.Sprintf("Directory %q created successfully.", path), nil
		},
	}
}

func deletePathTool() Descriptor {
	return Descriptor{
		Name:        "delete_path",
		Description: "Delete a file, or a directory and all of its contents. This is permanent.",
		Parameters: objectSchema([]string{"path"}, map[string]interface{}{
			"path": stringProp("Path to delete."),
		}),
		Run: func(args map[string]interface{}) (string, error) {
			path, ok := StringArg(args, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Sprintf("Path %q does not exist.", path), nil
				}
				return "", fmt.Errorf("delete_path: %w", err)
			}
			if info.IsDir() {
				if err := os.RemoveAll(path); err != nil {
					return "", fmt.Errorf("delete_path: %w", err)
				}
				return fmt.Sprintf("Directory %q and its contents deleted.", path), nil
			}
			if err := os.Remove(path); err != nil {
				return "", fmt.Errorf("delete_path: %w", err)
			}
			return fmt.Sprintf("File %q deleted.", path), nil
		},
	}
}

func pathExistsTool() Descriptor {
	return Descriptor{
		Name:        "path_exists",
		Description: "Check whether a file or directory exists.",
		Parameters: objectSchema([]string{"path"}, map[string]interface{}{
			"path": stringProp("Path to check."),
		}),
		Run: func(args map[string]interface{}) (string, error) {
			path, ok := StringArg(args, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Sprintf("Path %q does not exist.", path), nil
				}
				return "", fmt.Errorf("path_exists: %w", err)
			}
			if info.IsDir() {
				entries, _ := os.ReadDir(path)
				return fmt.Sprintf("Directory %q exists (%d entries).", path, len(entries)), nil
			}
			return fmt.Sprintf("File %q exists (%d bytes).", path, info.Size()), nil
		},
	}
}

func workingDirectoryTool() Descriptor {
	return Descriptor{
		Name:        "working_directory",
		Description: "Return the current working directory.",
		Parameters:  objectSchema(nil, map[string]interface{}{}),
		Run: func(args map[string]interface{}) (string, error) {
			wd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("working_directory: %w", err)
			}
			return fmt.Sprintf("Current working directory: %s", wd), nil
		},
	}
}

func installPackageTool() Descriptor {
	return Descriptor{
		Name: "install_package",
		Description: "Install a Python package with pip. Installation is killed after " +
			"120 seconds.",
		Parameters: objectSchema([]string{"package_name"}, map[string]interface{}{
			"package_name": stringProp("Name of the package to install."),
		}),
		Run: func(args map[string]interface{}) (string, error) {
			pkg, ok := StringArg(args, "package_name")
			if !ok || pkg == "" {
				return "", fmt.Errorf("package_name is required")
			}
			out, err := runSubprocess([]string{"pip", "install", pkg}, installTimeout)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Installing package %q:\n%s", pkg, out), nil
		},
	}
}

func shellCommand(command string) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd.exe", "/c", command}
	}
	return []string{"/bin/sh", "-c", command}
}

// runSubprocess runs argv with a wall-clock ceiling, capturing all output.
// A timeout is a tool failure carrying the partial output; a non-zero exit
// is a normal result with the exit code reported.
func runSubprocess(argv []string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// Own process group so a timed-out command's children die with it and
	// release the output pipes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s; partial output:\n%s",
			timeout, combineOutput(stdout.String(), stderr.String()))
	}

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return "", fmt.Errorf("starting command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	var sb strings.Builder
	sb.WriteString(combineOutput(stdout.String(), stderr.String()))
	if exitCode != 0 {
		fmt.Fprintf(&sb, "\n[Exit code: %d]", exitCode)
	}
	return sb.String(), nil
}

func combineOutput(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	default:
		return stdout + "\n" + stderr
	}
}
