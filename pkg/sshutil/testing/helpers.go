package testing

// WithFiles pre-populates the mock filesystem with files.
// Keys are paths, values are file contents.
func WithFiles(client *MockClient, files map[string]string) {
	for path, content := range files {
		_ = client.GetFS().WriteFile(path, []byte(content))
	}
}

// WithDirs pre-populates the mock filesystem with directories.
func WithDirs(client *MockClient, dirs []string) {
	for _, dir := range dirs {
		_ = client.GetFS().MkdirAll(dir)
	}
}

// WithHostFacts populates the files a benchmark run reads for host
// metadata: /proc/cmdline and /proc/cpuinfo.
func WithHostFacts(client *MockClient, cmdline, cpuModel string) {
	WithFiles(client, map[string]string{
		"/proc/cmdline": cmdline + "\n",
		"/proc/cpuinfo": "processor\t: 0\nvendor_id\t: GenuineIntel\nmodel name\t: " + cpuModel + "\n" +
			"\nprocessor\t: 1\nmodel name\t: " + cpuModel + "\n",
	})
}

// WithBenchmark registers a fake benchmark: any `taskset` command writes
// csv to resultFile inside the working directory and exits 0.
func WithBenchmark(client *MockClient, resultFile, csv string) {
	client.SetCommandHandler(`^taskset `, func(call Call) CommandResponse {
		_ = call.FS.WriteFile(call.Dir+"/"+resultFile, []byte(csv))
		return CommandResponse{Stdout: []byte("Running ./bench\n")}
	})
}
