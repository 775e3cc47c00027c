/*
Package cli provides helpers shared by the certwatch commands.

Output Formatting:

Results are printed as text, JSON or CSV. Types that implement Table render
as aligned columns in text mode and as rows in CSV mode:

	format, err := cli.ParseOutputFormat(flagValue)
	if err != nil {
		return err
	}
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, result); err != nil {
		return err
	}

Exit Codes:

Commands return ConfigError or CommandError values; ExitCode maps them to
the process exit status, with ExitUnhealthy reserved for checks that ran and
failed.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	reloads, stopReloads := cli.ReloadSignals()
	defer stopReloads()
*/
package cli
