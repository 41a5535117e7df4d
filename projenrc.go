package main

import (
	"fmt"

	"github.com/corymhall/textlsp/projenrc"
	"github.com/projen/projen-go/projen"
)

func main() {
	project := projen.NewProject(&projen.ProjectOptions{
		Name: projenrc.StrPtr("textlsp"),
		GitIgnoreOptions: &projen.IgnoreFileOptions{
			IgnorePatterns: &[]*string{projenrc.StrPtr("bin")},
		},
	})
	project.DefaultTask().Exec(projenrc.StrPtr("go run projenrc.go"), &projen.TaskStepOptions{})

	vscode := projenrc.NewVscodeProject(project)

	project.TestTask().Exec(projenrc.StrPtr("go test ./..."), &projen.TaskStepOptions{})
	project.PackageTask().Exec(projenrc.StrPtr(fmt.Sprintf(
		"go build -o bin/%s -ldflags \"-s -w -X main.version=${VERSION:-dev}\" ./cmd/textlsp", projenrc.BinaryName)), &projen.TaskStepOptions{})

	vscodePackageTask := project.AddTask(projenrc.StrPtr("package:vscode"), &projen.TaskOptions{
		Steps: &[]*projen.TaskStep{
			{
				Exec: projenrc.StrPtr(fmt.Sprintf("cp ./bin/%s ./editors/vscode/", projenrc.BinaryName)),
			},
			{
				Exec: projenrc.StrPtr("npx projen package"),
				Cwd:  projenrc.StrPtr("./editors/vscode"),
			},
		},
	})

	project.PackageTask().Spawn(vscodePackageTask, &projen.TaskStepOptions{})

	project.Synth()
	vscode.Synth()
}
