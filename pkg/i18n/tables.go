package i18n

var en = map[string]string{
	"export.title":        "Conversation",
	"export.user":         "User",
	"export.assistant":    "Assistant",
	"export.system":       "System",
	"export.thinking":     "Thinking",
	"export.tool":         "Tool",
	"export.result":       "Result",
	"export.truncated":    "truncated",
	"export.compacted":    "Context compacted",
	"export.archived":     "archived",
	"header.export":       "Export conversation as Markdown",
	"chat.loadingHistory": "Loading messages…",
	"thinking.label":      "Thinking",
	"tool.parameters":     "Parameters",
	"tool.result":         "Result",
	"time.today":          "Today",
	"time.yesterday":      "Yesterday",

	"stats.messages":   "Messages",
	"stats.live":       "Live",
	"stats.archived":   "Archived",
	"stats.separators": "Separators",
	"stats.tokens":     "Estimated tokens",

	"agents.created":  "Agent {agent} created",
	"agents.deleted":  "Agent {agent} deleted",
	"agents.exists":   "Agent {agent} already exists",
	"agents.notFound": "Agent {agent} not found",
}

var fr = map[string]string{
	"export.title":        "Conversation",
	"export.user":         "Utilisateur",
	"export.assistant":    "Assistant",
	"export.system":       "Système",
	"export.thinking":     "Réflexion",
	"export.tool":         "Outil",
	"export.result":       "Résultat",
	"export.truncated":    "tronqué",
	"export.compacted":    "Contexte compacté",
	"export.archived":     "archivé",
	"header.export":       "Exporter la conversation en Markdown",
	"chat.loadingHistory": "Chargement des messages…",
	"thinking.label":      "Réflexion",
	"tool.parameters":     "Paramètres",
	"tool.result":         "Résultat",
	"time.today":          "Aujourd'hui",
	"time.yesterday":      "Hier",

	"stats.messages":   "Messages",
	"stats.live":       "Actifs",
	"stats.archived":   "Archivés",
	"stats.separators": "Séparateurs",
	"stats.tokens":     "Jetons estimés",

	"agents.created":  "Agent {agent} créé",
	"agents.deleted":  "Agent {agent} supprimé",
	"agents.exists":   "L'agent {agent} existe déjà",
	"agents.notFound": "Agent {agent} introuvable",
}

var tables = map[string]map[string]string{
	"en": en,
	"fr": fr,
}
