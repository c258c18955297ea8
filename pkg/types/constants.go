package types

// Top level sections of a specification document.
const (
	SectionVersion      = "version"
	SectionKind         = "kind"
	SectionLogging      = "logging"
	SectionTags         = "tags"
	SectionBackend      = "backend"
	SectionFramework    = "framework"
	SectionEnvironment  = "environment"
	SectionDeclarations = "declarations"
	SectionHPTuning     = "hptuning"
	SectionModel        = "model"
	SectionTrain        = "train"
	SectionEval         = "eval"
	SectionBuild        = "build"
	SectionRun          = "run"
)

type Kind string

const (
	KindExperiment  Kind = "experiment"
	KindGroup       Kind = "group"
	KindJob         Kind = "job"
	KindNotebook    Kind = "notebook"
	KindTensorboard Kind = "tensorboard"
	KindBuild       Kind = "build"
)

const (
	FrameworkTensorflow = "tensorflow"
	FrameworkPytorch    = "pytorch"
	FrameworkMXNet      = "mxnet"
	FrameworkHorovod    = "horovod"
)

// Replica roles.
const (
	RoleWorker = "worker"
	RolePS     = "ps"
	RoleMaster = "master"
)

// Graph operators recognized inside model.graph.layers.
const (
	OperatorFor = "for"
	OperatorIf  = "if"
)

// Loop variable bound on every for iteration.
const LoopIndex = "index"
