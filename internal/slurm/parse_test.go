package slurm

import "testing"

const nodeReportFixture = `NodeName=gpu01 Arch=x86_64 CoresPerSocket=32
   CPUAlloc=128 CPUEfctv=128 CPUTot=128 CPULoad=64.05
   AvailableFeatures=gpu,a100
   ActiveFeatures=gpu,a100
   Gres=gpu:a100:4(S:0-1)
   GresDrain=N/A
   GresUsed=gpu:a100:4(IDX:0-3),tmpfs:0
   NodeAddr=gpu01 NodeHostName=gpu01 Version=23.02.7
   RealMemory=1031000 AllocMem=515500 FreeMem=123456 Sockets=2 Boards=1
   State=MIXED ThreadsPerCore=1 TmpDisk=0 Weight=1 Owner=N/A MCS_label=N/A
   Partitions=gpu
   CfgTRES=cpu=128,mem=1031000M,billing=128,gres/gpu=4
   AllocTRES=cpu=128,mem=515500M,gres/gpu=4

NodeName=gpu02 Arch=x86_64 CoresPerSocket=32
   CPUAlloc=0 CPUEfctv=128 CPUTot=128 CPULoad=0.01
   Gres=gpu:a100:4
   GresUsed=gpu:a100:0
   State=IDLE+DRAIN ThreadsPerCore=1
   Reason=Not responding [slurm@2026-02-20T09:55:12]

NodeName=cpu01 Arch=x86_64 CoresPerSocket=64
   CPUAlloc=12 CPUTot=256 CPULoad=11.90
   Gres=(null)
   State=MIXED ThreadsPerCore=2
`

func TestParseNodeReport(t *testing.T) {
	nodes := ParseNodeReport(nodeReportFixture)
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}

	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byName[n.Name] = n
	}

	gpu01 := byName["gpu01"]
	if !gpu01.HasGPU || gpu01.GPUType != "a100" || gpu01.GPUTotal != 4 || gpu01.GPUUsed != 4 {
		t.Fatalf("unexpected gpu01 record: %+v", gpu01)
	}
	if gpu01.State != "MIXED" {
		t.Fatalf("unexpected gpu01 state %q", gpu01.State)
	}

	gpu02 := byName["gpu02"]
	if gpu02.State != "IDLE+DRAIN" {
		t.Fatalf("expected raw combined state preserved, got %q", gpu02.State)
	}
	if gpu02.Healthy() {
		t.Fatalf("expected drained node to be unhealthy")
	}
	if gpu02.GPUUsed != 0 {
		t.Fatalf("unexpected gpu02 used count %d", gpu02.GPUUsed)
	}

	cpu01 := byName["cpu01"]
	if cpu01.HasGPU {
		t.Fatalf("expected cpu01 to carry no GPU fields: %+v", cpu01)
	}
	if cpu01.GPUTotal != 0 || cpu01.GPUType != "" {
		t.Fatalf("expected absent GPU fields to stay zero-valued: %+v", cpu01)
	}
}

func TestParseNodeReportOrdersByName(t *testing.T) {
	raw := "NodeName=gpu09\n   State=IDLE\n   Gres=gpu:h100:8\n" +
		"NodeName=gpu01\n   State=IDLE\n   Gres=gpu:h100:8\n"
	nodes := ParseNodeReport(raw)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].Name != "gpu01" || nodes[1].Name != "gpu09" {
		t.Fatalf("expected name-sorted nodes, got %s then %s", nodes[0].Name, nodes[1].Name)
	}
}

func TestParseNodeReportDropsNamelessRecord(t *testing.T) {
	raw := "NodeName= Arch=x86_64\n   State=IDLE\n   Gres=gpu:a100:4\n" +
		"NodeName=gpu05\n   State=IDLE\n   Gres=gpu:a100:4\n"
	nodes := ParseNodeReport(raw)
	if len(nodes) != 1 {
		t.Fatalf("expected nameless record dropped, got %d nodes", len(nodes))
	}
	if nodes[0].Name != "gpu05" {
		t.Fatalf("unexpected surviving node %q", nodes[0].Name)
	}
	// The nameless record's fields must not leak into a neighbour.
	if nodes[0].State != "IDLE" || nodes[0].GPUTotal != 4 {
		t.Fatalf("unexpected gpu05 record: %+v", nodes[0])
	}
}

func TestParseNodeReportMalformedCountDropsFieldNotRecord(t *testing.T) {
	raw := "NodeName=gpu07\n   State=ALLOCATED\n   Gres=gpu:a100:N\n"
	nodes := ParseNodeReport(raw)
	if len(nodes) != 1 {
		t.Fatalf("expected record kept, got %d", len(nodes))
	}
	if nodes[0].HasGPU {
		t.Fatalf("expected malformed Gres count to leave GPU fields absent")
	}
	if nodes[0].State != "ALLOCATED" {
		t.Fatalf("unexpected state %q", nodes[0].State)
	}
}

func TestParseNodeReportFirstStateWins(t *testing.T) {
	raw := "NodeName=gpu08\n   State=DRAIN*IDLE Flags=x\n   State=IDLE\n   Gres=gpu:v100:2\n"
	nodes := ParseNodeReport(raw)
	if len(nodes) != 1 {
		t.Fatalf("expected one node, got %d", len(nodes))
	}
	if nodes[0].State != "DRAIN*IDLE" {
		t.Fatalf("expected first state token kept, got %q", nodes[0].State)
	}
}

const jobReportFixture = `NODELIST|USER|STATE|TRES_PER_NODE|NAME|JOBID|PRIORITY|START_TIME|TIME_LIMIT
gpu01|alice|RUNNING|gpu:a100:2|train-llm|4242|100000|2026-02-25T10:00:00|1-00:00:00
gpu[02-03]|bob|RUNNING|gpu:a100:4|finetune|4243|90000|2026-02-25T09:00:00|12:00:00
cpu01|dave|RUNNING|N/A|preprocess|4244|80000|2026-02-25T08:00:00|4:00:00
|carol|PENDING|gpu:2|eval-sweep|4245|85000|N/A|2:30:00
|erin|PENDING|gpu:h100:8|pretrain|4246|120000|2026-02-26T00:00:00|3-00:00:00
short|row|PENDING
`

func TestParseJobReportSplitsRunningAndPending(t *testing.T) {
	running, queued := ParseJobReport(jobReportFixture)

	if len(running) != 2 {
		t.Fatalf("expected 2 running GPU jobs, got %d", len(running))
	}
	if running[0].Nodelist != "gpu01" || running[0].User != "alice" || running[0].GPUCount != 2 {
		t.Fatalf("unexpected first running job: %+v", running[0])
	}
	if running[1].Nodelist != "gpu[02-03]" || running[1].GPUCount != 4 {
		t.Fatalf("unexpected second running job: %+v", running[1])
	}

	if len(queued) != 2 {
		t.Fatalf("expected 2 queued GPU jobs, got %d", len(queued))
	}
	carol := queued[0]
	if carol.User != "carol" || carol.GPUType != GPUTypeAny || carol.GPUCount != 2 {
		t.Fatalf("unexpected untyped pending job: %+v", carol)
	}
	if carol.GPUHours != 5.0 {
		t.Fatalf("expected 2.5h x 2 GPUs = 5.0 gpu-hours, got %v", carol.GPUHours)
	}
	erin := queued[1]
	if erin.GPUType != "h100" || erin.GPUCount != 8 {
		t.Fatalf("unexpected typed pending job: %+v", erin)
	}
	if erin.GPUHours != 72*8 {
		t.Fatalf("expected 72h x 8 GPUs, got %v", erin.GPUHours)
	}
	if erin.Priority != "120000" || erin.StartTime != "2026-02-26T00:00:00" {
		t.Fatalf("unexpected pending display fields: %+v", erin)
	}
}

func TestParseJobReportSkipsHeaderLine(t *testing.T) {
	raw := "gpu01|alice|RUNNING|gpu:a100:2|train|1|1|N/A|1:00:00\n" +
		"gpu02|bob|RUNNING|gpu:a100:2|train|2|1|N/A|1:00:00\n"
	running, _ := ParseJobReport(raw)
	if len(running) != 1 {
		t.Fatalf("expected first line treated as header, got %d running jobs", len(running))
	}
	if running[0].User != "bob" {
		t.Fatalf("unexpected surviving row: %+v", running[0])
	}
}

func TestParseJobReportDropsShortAndNonGPURows(t *testing.T) {
	raw := "HEADER\n" +
		"gpu01|alice|RUNNING\n" +
		"gpu01|alice|RUNNING|N/A|cpu-job|10|1|N/A|1:00:00\n" +
		"gpu01|alice|RUNNING|gpu:a100|no-count|11|1|N/A|1:00:00\n" +
		"garbage line without pipes\n"
	running, queued := ParseJobReport(raw)
	if len(running) != 0 || len(queued) != 0 {
		t.Fatalf("expected all rows dropped, got running=%d queued=%d", len(running), len(queued))
	}
}

func TestParseJobReportMissingOptionalColumns(t *testing.T) {
	raw := "HEADER\n|frank|PENDING|gpu:4|hpo|77\n"
	_, queued := ParseJobReport(raw)
	if len(queued) != 1 {
		t.Fatalf("expected pending row kept, got %d", len(queued))
	}
	job := queued[0]
	if job.Priority != "N/A" || job.StartTime != "N/A" {
		t.Fatalf("expected N/A fallbacks for missing columns: %+v", job)
	}
	if job.GPUHours != 4.0 {
		t.Fatalf("expected default 1h limit x 4 GPUs, got %v", job.GPUHours)
	}
}

func TestParseGPURequest(t *testing.T) {
	tests := []struct {
		in      string
		gpuType string
		count   int
		ok      bool
	}{
		{in: "gpu:a100:4", gpuType: "a100", count: 4, ok: true},
		{in: "gpu:2", gpuType: GPUTypeAny, count: 2, ok: true},
		{in: "gres:gpu:h100:8", gpuType: "h100", count: 8, ok: true},
		{in: "N/A", ok: false},
		{in: "", ok: false},
		{in: "gpu:a100", ok: false},
	}
	for _, tt := range tests {
		gpuType, count, ok := parseGPURequest(tt.in)
		if ok != tt.ok {
			t.Fatalf("parseGPURequest(%q) ok=%v want=%v", tt.in, ok, tt.ok)
		}
		if !ok {
			continue
		}
		if gpuType != tt.gpuType || count != tt.count {
			t.Fatalf("parseGPURequest(%q)=%s/%d want=%s/%d", tt.in, gpuType, count, tt.gpuType, tt.count)
		}
	}
}
