package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// NewApp creates an app with the same boilerplate (version, usage banner,
// commit/date metadata) every binary in this module shares.
func NewApp(gitCommit, gitDate, usage string) *cli.App {
	app := cli.NewApp()
	app.EnableBashCompletion = true
	app.Version = versionString(gitCommit, gitDate)
	app.Usage = usage
	app.Copyright = "Copyright 2024 The op-succinct-go Authors"
	return app
}

func versionString(gitCommit, gitDate string) string {
	v := "dev"
	if gitCommit != "" {
		v = gitCommit
		if len(v) > 8 {
			v = v[:8]
		}
	}
	if gitDate != "" {
		return fmt.Sprintf("%s-%s", v, gitDate)
	}
	return v
}
