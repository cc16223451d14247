package registry

const (
	Team   = "team"
	Player = "player"
)

var teamEntity = Entity{
	Name:        Team,
	Table:       "teams",
	IDField:     "id",
	SearchField: "name",
	Fields: []Field{
		{Name: "id", Kind: KindUUID, Required: true, Unique: true},
		{Name: "name", Kind: KindString, Required: true, Unique: true},
		{Name: "shirtColor", Kind: KindString, Required: true},
		{Name: "updatedAt", Kind: KindTime},
		{Name: "createdAt", Kind: KindTime},
	},
	Relations: []Relation{
		{Name: "players", Target: Player, ForeignKey: "teamId"},
	},
}

var playerEntity = Entity{
	Name:        Player,
	Table:       "players",
	IDField:     "id",
	SearchField: "name",
	Fields: []Field{
		{Name: "id", Kind: KindUUID, Required: true, Unique: true},
		{Name: "name", Kind: KindString, Required: true},
		{Name: "position", Kind: KindString, Required: true},
		{Name: "age", Kind: KindInt},
		{Name: "salary", Kind: KindFloat, Required: true},
		{Name: "teamId", Kind: KindUUID, Required: true, References: Team},
		{Name: "updatedAt", Kind: KindTime},
		{Name: "createdAt", Kind: KindTime},
	},
}

// Default returns the team/player registry used by the server.
func Default() *Registry {
	return MustNew(teamEntity, playerEntity)
}
