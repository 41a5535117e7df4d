package projenrc

import (
	"fmt"

	"github.com/projen/projen-go/projen"
	"github.com/projen/projen-go/projen/javascript"
	"github.com/projen/projen-go/projen/typescript"
)

// BinaryName is the server executable bundled with the extension.
const BinaryName = "textlsp"

type Contributes struct {
	Configuration Configuration `json:"configuration"`
}

// Configuration represents the settings the extension contributes.
type Configuration struct {
	Title      string              `json:"title"`
	Properties map[string]Property `json:"properties"`
}

// Property represents a property in the configuration.
type Property struct {
	Type                []string `json:"type"`
	Default             *string  `json:"default"`
	Enum                []string `json:"enum,omitempty"`
	MarkdownDescription string   `json:"markdownDescription"`
}

// ExtensionContributes returns the settings section of the extension
// manifest. The names mirror the server's own configuration keys.
func ExtensionContributes() Contributes {
	return Contributes{
		Configuration: Configuration{
			Title: "Text LSP",
			Properties: map[string]Property{
				"textlsp.server.path": {
					Type:                []string{"string", "null"},
					Default:             nil,
					MarkdownDescription: "Specifies the path to the `textlsp` binary to use. Leave as `null` to use the binary bundled with the extension.",
				},
				"textlsp.logLevel": {
					Type:                []string{"string"},
					Default:             StrPtr("info"),
					Enum:                []string{"debug", "info", "warn", "error"},
					MarkdownDescription: "Passed to the server as `--log-level`.",
				},
				"textlsp.references.extension": {
					Type:                []string{"string"},
					Default:             StrPtr(".txt"),
					MarkdownDescription: "Files with this extension are returned by Find All References. Passed to the server as `--extension`.",
				},
			},
		},
	}
}

func NewVscodeProject(project projen.Project) typescript.TypeScriptProject {
	vscode := typescript.NewTypeScriptProject(&typescript.TypeScriptProjectOptions{
		DefaultReleaseBranch: StrPtr("main"),
		Outdir:               StrPtr("editors/vscode"),
		SampleCode:           BoolPtr(false),
		Parent:               project,
		Prettier:             BoolPtr(true),
		PrettierOptions: &javascript.PrettierOptions{
			Settings: &javascript.PrettierSettings{
				SingleQuote: BoolPtr(true),
			},
		},
		Description: StrPtr("Plain text Language Server Protocol (LSP) extension for Visual Studio Code"),
		Repository:  StrPtr("https://github.com/corymhall/textlsp"),
		EslintOptions: &javascript.EslintOptions{
			Dirs:     &[]*string{},
			Prettier: BoolPtr(true),
		},
		Name:       StrPtr("textlsp-client"),
		AuthorName: StrPtr("corymhall"),
		Deps:       &[]*string{StrPtr("vscode-languageclient")},
		DevDeps:    &[]*string{StrPtr("@types/vscode"), StrPtr("@vscode/vsce")},
	})

	vscode.Gitignore().AddPatterns(StrPtr(BinaryName))
	vscode.Package().AddField(StrPtr("main"), "assets/extension/index.js")
	bundle := vscode.Bundler().AddBundle(StrPtr("src/extension.ts"), &javascript.AddBundleOptions{
		Platform:  StrPtr("node"),
		Target:    StrPtr("node16"),
		Externals: &[]*string{StrPtr("vscode")},
		Minify:    BoolPtr(true),
	})

	projen.NewIgnoreFile(vscode, StrPtr(".vscodeignore"), &projen.IgnoreFileOptions{
		IgnorePatterns: &[]*string{
			StrPtr("node_modules"),
			StrPtr("!assets/extension/index.js"),
			StrPtr("!" + BinaryName),
			StrPtr("!README.md"),
			StrPtr("!LICENSE"),
			StrPtr("!package.json"),
			StrPtr("**/*"),
		},
	})

	vscode.AddScripts(&map[string]*string{
		"vscode:prepublish": StrPtr(fmt.Sprintf("npx projen %s", *bundle.BundleTask.Name())),
	})

	vscode.PackageTask().Reset(StrPtr("npx vsce package --out ../../bin/"), &projen.TaskStepOptions{})
	vscode.Package().AddField(StrPtr("activationEvents"), []string{
		"onLanguage:plaintext",
	})
	vscode.Package().AddField(StrPtr("engines"), map[string]any{
		"vscode": "^1.99.1",
	})
	vscode.Package().AddField(StrPtr("contributes"), ExtensionContributes())
	return vscode
}
