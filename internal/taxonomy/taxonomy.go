// Package taxonomy holds the fixed two-level theme taxonomy used to
// classify tweets, the prompt builders for the classification calls,
// and the parsers for the model's JSON replies.
package taxonomy

// Version is stamped on every classification record. Bumping it causes
// tweets to be re-classified rather than overwritten.
const Version = "v1-seq-llm"

// Sentinel labels. Neither is a selectable member of the taxonomy.
const (
	// LabelUncertain is recorded when the model's L1 confidence falls
	// below the confidence floor, or when it returns a label outside
	// the L1 set.
	LabelUncertain = "Uncertain"
	// LabelOther replaces any L2 label outside the chosen L1's
	// sub-theme set.
	LabelOther = "Other"
)

// ConfidenceFloor is the minimum L1 confidence below which a tweet is
// recorded as Uncertain and the L2 call is skipped.
const ConfidenceFloor = 0.3

// Theme is a labeled taxonomy entry with a one-line description shown
// to the model.
type Theme struct {
	Label       string
	Description string
}

// l1Themes is the fixed top-level theme set, in presentation order.
// The digest renders categories in exactly this order.
var l1Themes = []Theme{
	{"New Model Releases", "Announcements of new AI models, checkpoints, or major version updates from labs and companies"},
	{"Breakthrough Research", "Novel research results, papers, and scientific advances in AI/ML"},
	{"Applications and Products", "AI-powered products, features, and real-world deployments"},
	{"Tools and Resources", "Developer tools, libraries, datasets, tutorials, and learning material"},
	{"Industry News", "Company news, partnerships, acquisitions, and strategic moves in the AI industry"},
	{"Open Source", "Open-source model weights, code releases, and community-driven projects"},
	{"Safety and Alignment", "AI safety research, alignment techniques, red-teaming, and risk analysis"},
	{"Policy and Regulation", "Government action, legislation, standards, and compliance affecting AI"},
	{"Funding and Startups", "Venture funding rounds, new startups, and AI market activity"},
	{"Research Community", "Conferences, workshops, calls for papers, hiring, and academic news"},
	{"Opinions and Debates", "Commentary, predictions, critiques, and debates about AI's direction"},
	{"Demos and Creative Work", "Impressive demos, generative art, and creative uses of AI"},
}

// l2Themes maps each L1 label to its ordered sub-theme set.
var l2Themes = map[string][]Theme{
	"New Model Releases": {
		{"Language Models", "New LLMs or major LLM version releases"},
		{"Multimodal Models", "Models spanning text, image, audio, or video"},
		{"Specialized Models", "Domain-specific models (code, biology, robotics)"},
		{"Model Updates", "Incremental updates, fine-tunes, and context or capability extensions"},
	},
	"Breakthrough Research": {
		{"Architecture Innovations", "New neural architectures or structural advances"},
		{"Training Methods", "Advances in pre-training, fine-tuning, RLHF, or optimization"},
		{"Evaluation and Benchmarks", "New benchmarks, evals, or measurement methodology"},
		{"Emergent Capabilities", "Newly observed model capabilities or scaling results"},
		{"Efficiency", "Quantization, distillation, and inference or training efficiency"},
	},
	"Applications and Products": {
		{"Consumer Products", "AI features in consumer-facing apps and devices"},
		{"Enterprise Solutions", "Business, productivity, and vertical-market deployments"},
		{"Agents and Automation", "Autonomous agents, copilots, and workflow automation"},
		{"Healthcare and Science", "AI applied to medicine, biology, and scientific discovery"},
	},
	"Tools and Resources": {
		{"Frameworks and Libraries", "Software frameworks, SDKs, and libraries"},
		{"Datasets", "New or updated datasets and data tooling"},
		{"Tutorials and Courses", "Educational content, courses, and guides"},
		{"Developer Tools", "Infra, eval harnesses, and tooling for builders"},
	},
	"Industry News": {
		{"Company Announcements", "Official announcements from AI companies and labs"},
		{"Partnerships", "Alliances, integrations, and joint ventures"},
		{"Talent Moves", "Notable hires, departures, and team changes"},
		{"Compute and Hardware", "Chips, datacenters, and compute supply news"},
	},
	"Open Source": {
		{"Model Weights", "Open-weight model releases"},
		{"Code Releases", "Open-sourced training or inference code"},
		{"Community Projects", "Community-built tools, ports, and integrations"},
	},
	"Safety and Alignment": {
		{"Alignment Research", "Techniques for aligning model behavior"},
		{"Red-Teaming and Jailbreaks", "Adversarial testing and vulnerability reports"},
		{"Interpretability", "Understanding model internals"},
		{"Risk Analysis", "Assessments of AI risk and failure modes"},
	},
	"Policy and Regulation": {
		{"Legislation", "Bills, acts, and regulatory frameworks"},
		{"Government Initiatives", "Public-sector AI programs and executive action"},
		{"Standards and Compliance", "Industry standards, audits, and certification"},
	},
	"Funding and Startups": {
		{"Funding Rounds", "Venture and strategic investment announcements"},
		{"New Startups", "Company launches and stealth exits"},
		{"Market Analysis", "Valuations, market sizing, and investment trends"},
	},
	"Research Community": {
		{"Conferences and Events", "Conference news, deadlines, and highlights"},
		{"Publications", "Journal and preprint ecosystem news"},
		{"Hiring and Positions", "Academic and lab openings"},
	},
	"Opinions and Debates": {
		{"Predictions", "Forecasts about AI capabilities and timelines"},
		{"Critiques", "Criticism of models, methods, or industry practice"},
		{"Philosophy and Ethics", "Ethical and philosophical discussion of AI"},
	},
	"Demos and Creative Work": {
		{"Generative Art", "Image, video, and music generation showcases"},
		{"Interactive Demos", "Hands-on demos and playgrounds"},
		{"Creative Writing", "AI-assisted writing and storytelling"},
	},
}

// L1Themes returns the top-level themes in fixed presentation order.
func L1Themes() []Theme {
	out := make([]Theme, len(l1Themes))
	copy(out, l1Themes)
	return out
}

// L2Themes returns the ordered sub-themes for the given L1 label, or
// nil if the label is not a member of the L1 set.
func L2Themes(l1 string) []Theme {
	themes, ok := l2Themes[l1]
	if !ok {
		return nil
	}
	out := make([]Theme, len(themes))
	copy(out, themes)
	return out
}

// PresentationOrder returns the L1 labels in the order the digest
// presents them.
func PresentationOrder() []string {
	labels := make([]string, len(l1Themes))
	for i, t := range l1Themes {
		labels[i] = t.Label
	}
	return labels
}

// IsL1 reports whether label is a member of the L1 theme set.
func IsL1(label string) bool {
	for _, t := range l1Themes {
		if t.Label == label {
			return true
		}
	}
	return false
}

// IsL2 reports whether label is a sub-theme of the given L1.
func IsL2(l1, label string) bool {
	for _, t := range l2Themes[l1] {
		if t.Label == label {
			return true
		}
	}
	return false
}
